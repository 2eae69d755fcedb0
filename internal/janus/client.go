package janus

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"go.uber.org/multierr"

	applog "campanel/internal/logging"
)

// EventHandler はゲートウェイからの非同期イベントを受け取る
type EventHandler func(msg *Message)

// Session はゲートウェイ上のセッション
type Session interface {
	ID() uint64

	// Attach はプラグインにアタッチし、ハンドル宛てのイベントを onEvent に渡す
	Attach(ctx context.Context, plugin string, onEvent EventHandler) (Handle, error)

	// Destroy はセッションを破棄する
	Destroy(ctx context.Context) error
}

// Handle はプラグインへのハンドル
type Handle interface {
	ID() uint64

	// Message はプラグインにメッセージを送る
	// 同期応答があればそれを、非同期（ack）なら nil を返す
	Message(ctx context.Context, body any, jsep *JSEP) (*Message, error)

	// Hangup はPeerConnectionを切断する
	Hangup(ctx context.Context) error

	// Detach はプラグインから切り離す
	Detach(ctx context.Context) error
}

// ClientConfig はシグナリングクライアントの設定
type ClientConfig struct {
	URL       string
	Keepalive time.Duration
	Timeout   time.Duration

	LoggerFactory logging.LoggerFactory
}

// Client はゲートウェイへのクライアント
type Client struct {
	cfg ClientConfig
	log logging.LeveledLogger
}

// NewClient は新しい Client を作成する
func NewClient(cfg ClientConfig) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("janus URLの解析に失敗: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("サポートされていないスキーム: %s", u.Scheme)
	}

	factory := cfg.LoggerFactory
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = 25 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, log: factory.NewLogger(applog.ScopeJanus)}, nil
}

// dial はURLのスキームに応じたトランスポートを作成する
func (c *Client) dial(ctx context.Context) (Transport, error) {
	if strings.HasPrefix(c.cfg.URL, "ws") {
		return DialWebSocket(ctx, c.cfg.URL, c.cfg.Timeout, c.log)
	}
	return NewHTTPTransport(c.cfg.URL, c.cfg.Timeout, c.log), nil
}

// Create はゲートウェイに接続してセッションを作成する
// セッション宛てのイベント（タイムアウトや接続断）は onEvent に渡す
func (c *Client) Create(ctx context.Context, onEvent EventHandler) (Session, error) {
	t, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	s, err := NewSession(ctx, t, c.cfg.Keepalive, c.log, onEvent)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	return s, nil
}

// Info はゲートウェイの情報を取得する
func (c *Client) Info(ctx context.Context) (*Message, error) {
	t, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	resp, err := t.Do(ctx, &Message{Janus: TypeInfo, Transaction: NewTransaction()})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// NewTransaction はトランザクションIDを生成する
func NewTransaction() string {
	return uuid.NewString()
}

// NewOpaqueID はハンドルを識別するための不透明IDを生成する
func NewOpaqueID(prefix string) string {
	id := uuid.New()
	return prefix + hex.EncodeToString(id[:6])
}

// session は Session の実装
type session struct {
	id        uint64
	transport Transport
	log       logging.LeveledLogger
	onEvent   EventHandler

	mu      sync.Mutex
	handles map[uint64]EventHandler

	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	keepalive time.Duration
}

// NewSession はトランスポート上にセッションを作成する
func NewSession(ctx context.Context, t Transport, keepalive time.Duration, log logging.LeveledLogger, onEvent EventHandler) (Session, error) {
	resp, err := t.Do(ctx, &Message{Janus: TypeCreate, Transaction: NewTransaction()})
	if err != nil {
		return nil, fmt.Errorf("セッションの作成に失敗: %w", err)
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("セッションの作成に失敗: %w", err)
	}
	if resp.Data == nil || resp.Data.ID == 0 {
		return nil, fmt.Errorf("セッションIDがありません")
	}

	s := &session{
		id:        resp.Data.ID,
		transport: t,
		log:       log,
		onEvent:   onEvent,
		handles:   make(map[uint64]EventHandler),
		stop:      make(chan struct{}),
		keepalive: keepalive,
	}
	log.Infof("セッションを作成しました: %d", s.id)

	t.Listen(s.id)
	s.wg.Add(2)
	go s.eventLoop()
	go s.keepaliveLoop()
	return s, nil
}

func (s *session) ID() uint64 { return s.id }

func (s *session) eventLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case msg := <-s.transport.Events():
			s.route(msg)
		}
	}
}

// route はイベントをハンドルまたはセッションに振り分ける
func (s *session) route(msg *Message) {
	if msg.SessionID != 0 && msg.SessionID != s.id {
		return
	}
	if msg.Sender != 0 {
		s.mu.Lock()
		h, ok := s.handles[msg.Sender]
		s.mu.Unlock()
		if ok {
			if h != nil {
				h(msg)
			}
			return
		}
		s.log.Debugf("不明なハンドル宛てのイベント: %d %s", msg.Sender, msg.Janus)
		return
	}
	if s.onEvent != nil {
		s.onEvent(msg)
	}
}

func (s *session) keepaliveLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.keepalive)
			resp, err := s.transport.Do(ctx, &Message{
				Janus:       TypeKeepalive,
				SessionID:   s.id,
				Transaction: NewTransaction(),
			})
			cancel()
			if err == nil {
				err = resp.Err()
			}
			if err != nil {
				s.log.Warnf("キープアライブに失敗: %v", err)
			}
		}
	}
}

func (s *session) do(ctx context.Context, req *Message) (*Message, error) {
	req.SessionID = s.id
	if req.Transaction == "" {
		req.Transaction = NewTransaction()
	}
	resp, err := s.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *session) Attach(ctx context.Context, plugin string, onEvent EventHandler) (Handle, error) {
	resp, err := s.do(ctx, &Message{
		Janus:    TypeAttach,
		Plugin:   plugin,
		OpaqueID: NewOpaqueID("camera-"),
	})
	if err != nil {
		return nil, fmt.Errorf("プラグインへのアタッチに失敗: %w", err)
	}
	if resp.Data == nil || resp.Data.ID == 0 {
		return nil, fmt.Errorf("ハンドルIDがありません")
	}

	h := &handle{id: resp.Data.ID, session: s}
	s.mu.Lock()
	s.handles[h.id] = onEvent
	s.mu.Unlock()
	s.log.Infof("%s にアタッチしました: %d", plugin, h.id)
	return h, nil
}

func (s *session) Destroy(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		_, derr := s.do(ctx, &Message{Janus: TypeDestroy})
		close(s.stop)
		s.wg.Wait()
		err = multierr.Append(derr, s.transport.Close())
	})
	return err
}

// handle は Handle の実装
type handle struct {
	id      uint64
	session *session
}

func (h *handle) ID() uint64 { return h.id }

func (h *handle) Message(ctx context.Context, body any, jsep *JSEP) (*Message, error) {
	resp, err := h.session.do(ctx, &Message{
		Janus:    TypeMessage,
		HandleID: h.id,
		Body:     body,
		JSEP:     jsep,
	})
	if err != nil {
		return nil, fmt.Errorf("メッセージの送信に失敗: %w", err)
	}
	if resp.Janus == TypeAck {
		return nil, nil
	}
	return resp, nil
}

func (h *handle) Hangup(ctx context.Context) error {
	if _, err := h.session.do(ctx, &Message{Janus: TypeHangup, HandleID: h.id}); err != nil {
		return fmt.Errorf("ハングアップに失敗: %w", err)
	}
	return nil
}

func (h *handle) Detach(ctx context.Context) error {
	_, err := h.session.do(ctx, &Message{Janus: TypeDetach, HandleID: h.id})
	h.session.mu.Lock()
	delete(h.session.handles, h.id)
	h.session.mu.Unlock()
	if err != nil {
		return fmt.Errorf("デタッチに失敗: %w", err)
	}
	return nil
}
