package janus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

// Janus のWebSocketサブプロトコル
const subprotocol = "janus-protocol"

// WSTransport はWebSocketによるトランスポート
type WSTransport struct {
	conn   *websocket.Conn
	log    logging.LeveledLogger
	events chan *Message
	done   chan struct{}

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *Message
	closed  bool
	readErr error
}

// DialWebSocket はゲートウェイにWebSocketで接続する
func DialWebSocket(ctx context.Context, url string, timeout time.Duration, log logging.LeveledLogger) (*WSTransport, error) {
	d := websocket.Dialer{
		HandshakeTimeout: timeout,
		Subprotocols:     []string{subprotocol},
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("janus への接続に失敗: %w", err)
	}

	t := &WSTransport{
		conn:    conn,
		log:     log,
		events:  make(chan *Message, eventBuffer),
		done:    make(chan struct{}),
		pending: make(map[string]chan *Message),
	}
	go t.readLoop()
	return t, nil
}

// Do は要求を送信し、同じトランザクションの同期応答を待つ
func (t *WSTransport) Do(ctx context.Context, req *Message) (*Message, error) {
	if req.Transaction == "" {
		return nil, fmt.Errorf("トランザクションIDがありません")
	}

	ch := make(chan *Message, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.pending[req.Transaction] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, req.Transaction)
		t.mu.Unlock()
	}()

	if err := t.write(req); err != nil {
		return nil, err
	}

	select {
	case msg := <-ch:
		return msg, nil
	case <-t.done:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *WSTransport) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("メッセージの変換に失敗: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("メッセージの送信に失敗: %w", err)
	}
	return nil
}

func (t *WSTransport) readLoop() {
	defer close(t.done)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.readErr = err
			t.mu.Unlock()
			if !closed {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					t.log.Errorf("WebSocketの受信に失敗: %v", err)
				}
				t.emit(&Message{
					Janus: TypeError,
					Error: &ErrorInfo{Reason: "ゲートウェイとの接続が失われました"},
				})
			}
			return
		}

		msgs, err := decodeMessages(data)
		if err != nil {
			t.log.Warnf("%v", err)
			continue
		}
		for _, msg := range msgs {
			t.dispatch(msg)
		}
	}
}

// dispatch は同期応答を待ち受け側へ、それ以外をイベントへ振り分ける
func (t *WSTransport) dispatch(msg *Message) {
	if msg.Transaction != "" && msg.resolves() {
		t.mu.Lock()
		ch, ok := t.pending[msg.Transaction]
		if ok {
			delete(t.pending, msg.Transaction)
		}
		t.mu.Unlock()
		if ok {
			ch <- msg
			return
		}
	}
	if msg.Janus == TypeAck {
		return
	}
	t.emit(msg)
}

func (t *WSTransport) emit(msg *Message) {
	select {
	case t.events <- msg:
	default:
		t.log.Warnf("イベントを破棄しました: %s", msg.Janus)
	}
}

// Listen はWebSocketでは何もしない（イベントは同じ接続で届く）
func (t *WSTransport) Listen(uint64) {}

// Events は非同期イベントのチャネルを返す
func (t *WSTransport) Events() <-chan *Message {
	return t.events
}

// Close は接続を閉じる
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()

	err := t.conn.Close()
	<-t.done
	return err
}
