package janus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// SentMessage はモックに送信されたプラグインメッセージ
type SentMessage struct {
	Body map[string]any
	JSEP *JSEP
}

// Request は body の "request" を返す
func (m SentMessage) Request() string {
	r, _ := m.Body["request"].(string)
	return r
}

// MockGateway はテスト用のゲートウェイ
// 送信されたメッセージを記録し、任意のイベントを注入できる
type MockGateway struct {
	mu        sync.Mutex
	nextID    uint64
	sent      []SentMessage
	creates   int
	hangups   int
	detaches  int
	destroys  int
	responses map[string]any
	failures  map[string]error
	sessionCB EventHandler
	handleCB  EventHandler
	handleID  uint64
}

// NewMockGateway は新しい MockGateway を作成する
func NewMockGateway() *MockGateway {
	return &MockGateway{
		nextID:    100,
		responses: make(map[string]any),
		failures:  make(map[string]error),
	}
}

// SetResponse は request に対する同期応答のプラグインデータを設定する
func (g *MockGateway) SetResponse(request string, data any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses[request] = data
}

// SetFailure は操作（"create", "attach", request 名）を失敗させる
func (g *MockGateway) SetFailure(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = err
}

// Sent は送信されたメッセージを返す
func (g *MockGateway) Sent() []SentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SentMessage(nil), g.sent...)
}

// Requests は送信されたメッセージの request 名を返す
func (g *MockGateway) Requests() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.sent))
	for _, m := range g.sent {
		out = append(out, m.Request())
	}
	return out
}

// Counts はハングアップ、デタッチ、セッション破棄の回数を返す
func (g *MockGateway) Counts() (hangups, detaches, destroys int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hangups, g.detaches, g.destroys
}

// Sessions は作成されたセッションの数を返す
func (g *MockGateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.creates
}

// EmitPlugin はプラグインイベントを注入する
func (g *MockGateway) EmitPlugin(data map[string]any, jsep *JSEP) {
	raw, _ := json.Marshal(data)
	g.Emit(&Message{
		Janus:      TypeEvent,
		PluginData: &PluginData{Plugin: "janus.plugin.streaming", Data: raw},
		JSEP:       jsep,
	})
}

// Emit はハンドル宛てのイベントを注入する
func (g *MockGateway) Emit(msg *Message) {
	g.mu.Lock()
	cb := g.handleCB
	msg.Sender = g.handleID
	g.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

// EmitSession はセッション宛てのイベントを注入する
func (g *MockGateway) EmitSession(msg *Message) {
	g.mu.Lock()
	cb := g.sessionCB
	g.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

func (g *MockGateway) failure(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures[op]
}

// Create はモックのセッションを作成する
func (g *MockGateway) Create(_ context.Context, onEvent EventHandler) (Session, error) {
	if err := g.failure("create"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	g.creates++
	g.sessionCB = onEvent
	return &mockSession{gw: g, id: g.nextID}, nil
}

type mockSession struct {
	gw *MockGateway
	id uint64
}

func (s *mockSession) ID() uint64 { return s.id }

func (s *mockSession) Attach(_ context.Context, _ string, onEvent EventHandler) (Handle, error) {
	if err := s.gw.failure("attach"); err != nil {
		return nil, err
	}
	s.gw.mu.Lock()
	defer s.gw.mu.Unlock()
	s.gw.nextID++
	s.gw.handleID = s.gw.nextID
	s.gw.handleCB = onEvent
	return &mockHandle{gw: s.gw, id: s.gw.nextID}, nil
}

func (s *mockSession) Destroy(context.Context) error {
	s.gw.mu.Lock()
	defer s.gw.mu.Unlock()
	s.gw.destroys++
	return nil
}

type mockHandle struct {
	gw *MockGateway
	id uint64
}

func (h *mockHandle) ID() uint64 { return h.id }

func (h *mockHandle) Message(_ context.Context, body any, jsep *JSEP) (*Message, error) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, errors.New("body はマップである必要があります")
	}
	sent := SentMessage{Body: m, JSEP: jsep}
	if err := h.gw.failure(sent.Request()); err != nil {
		return nil, err
	}

	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()
	h.gw.sent = append(h.gw.sent, sent)

	data, ok := h.gw.responses[sent.Request()]
	if !ok {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Janus:      TypeSuccess,
		Sender:     h.id,
		PluginData: &PluginData{Plugin: "janus.plugin.streaming", Data: raw},
	}, nil
}

func (h *mockHandle) Hangup(context.Context) error {
	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()
	h.gw.hangups++
	return nil
}

func (h *mockHandle) Detach(context.Context) error {
	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()
	h.gw.detaches++
	h.gw.handleCB = nil
	return nil
}
