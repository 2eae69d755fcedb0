package janus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pion/logging"
)

// Transport はゲートウェイとのメッセージ送受信
type Transport interface {
	// Do は要求を送信し、同期応答（success / error / ack）を返す
	Do(ctx context.Context, req *Message) (*Message, error)

	// Listen はセッション宛てのイベント受信を開始する
	Listen(sessionID uint64)

	// Events は非同期イベントのチャネルを返す
	Events() <-chan *Message

	// Close はトランスポートを閉じる
	Close() error
}

const (
	eventBuffer = 64
	// ロングポーリングはゲートウェイ側で30秒保持される
	pollTimeout = 60 * time.Second
	// ポーリングが連続で失敗したら接続断とみなす回数
	pollFailures = 3
)

// HTTPTransport はREST APIとロングポーリングによるトランスポート
type HTTPTransport struct {
	rest   *resty.Client
	poll   *resty.Client
	log    logging.LeveledLogger
	events chan *Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewHTTPTransport は baseURL（例: http://host:8088/janus）宛ての HTTPTransport を作成する
func NewHTTPTransport(baseURL string, timeout time.Duration, log logging.LeveledLogger) *HTTPTransport {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetLogger(log)
	if timeout > 0 {
		rest.SetTimeout(timeout)
	}
	poll := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(pollTimeout).
		SetLogger(log)

	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPTransport{
		rest:   rest,
		poll:   poll,
		log:    log,
		events: make(chan *Message, eventBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Do は要求をPOSTする。セッションIDとハンドルIDはパスで指定する
func (t *HTTPTransport) Do(ctx context.Context, req *Message) (*Message, error) {
	if t.isClosed() {
		return nil, ErrTransportClosed
	}

	path := ""
	if req.SessionID != 0 {
		path += "/" + strconv.FormatUint(req.SessionID, 10)
		if req.HandleID != 0 {
			path += "/" + strconv.FormatUint(req.HandleID, 10)
		}
	}
	body := *req
	body.SessionID = 0
	body.HandleID = 0

	resp, err := t.rest.R().
		SetContext(ctx).
		SetBody(&body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("janus への要求に失敗: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("janus がエラーを返しました: %s", resp.Status())
	}

	var msg Message
	if err := json.Unmarshal(resp.Body(), &msg); err != nil {
		return nil, fmt.Errorf("janus の応答の解析に失敗: %w", err)
	}
	return &msg, nil
}

// Listen はセッションのロングポーリングを開始する
func (t *HTTPTransport) Listen(sessionID uint64) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.pollLoop(sessionID)
	}()
}

func (t *HTTPTransport) pollLoop(sessionID uint64) {
	path := "/" + strconv.FormatUint(sessionID, 10)
	failures := 0

	for {
		if t.ctx.Err() != nil {
			return
		}

		resp, err := t.poll.R().
			SetContext(t.ctx).
			SetQueryParam("maxev", "1").
			SetQueryParam("rid", strconv.FormatInt(time.Now().UnixMilli(), 10)).
			Get(path)
		if err == nil && resp.IsError() {
			err = fmt.Errorf("ポーリングがエラーを返しました: %s", resp.Status())
		}
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			failures++
			t.log.Warnf("イベントのポーリングに失敗 (%d/%d): %v", failures, pollFailures, err)
			if failures >= pollFailures {
				t.emit(&Message{
					Janus:     TypeError,
					SessionID: sessionID,
					Error:     &ErrorInfo{Reason: "ゲートウェイとの接続が失われました"},
				})
				return
			}
			select {
			case <-t.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		failures = 0

		msgs, err := decodeMessages(resp.Body())
		if err != nil {
			t.log.Warnf("%v", err)
			continue
		}
		for _, msg := range msgs {
			if msg.Janus == TypeKeepalive {
				continue
			}
			if msg.SessionID == 0 {
				msg.SessionID = sessionID
			}
			t.emit(msg)
		}
	}
}

func (t *HTTPTransport) emit(msg *Message) {
	select {
	case t.events <- msg:
	case <-t.ctx.Done():
	}
}

// Events は非同期イベントのチャネルを返す
func (t *HTTPTransport) Events() <-chan *Message {
	return t.events
}

// Close はポーリングを停止する
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
	return nil
}

func (t *HTTPTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
