package stream

import (
	"errors"
	"fmt"
	"time"
)

// State はストリームの状態
type State string

const (
	StateIdle        State = "idle"
	StateAttaching   State = "attaching"
	StateAttached    State = "attached"
	StateListing     State = "listing"
	StateWatching    State = "watching"
	StateNegotiating State = "negotiating"
	StatePlaying     State = "playing"
	StateStopped     State = "stopped"
	StateError       State = "error"
)

var (
	// ErrUnsupported は WebRTC が利用できない
	ErrUnsupported = errors.New("WebRTC はサポートされていません")
	// ErrNoSelection は視聴するストリームが選択されていない
	ErrNoSelection = errors.New("ストリームが選択されていません")
	// ErrUnexpectedOffer は視聴要求中でないときに届いたオファー
	ErrUnexpectedOffer = errors.New("予期しないオファーを受信しました")
	// ErrReloadRequired はセッションを作り直す必要がある
	ErrReloadRequired = errors.New("再読み込みが必要です")
	// ErrNotAttached はプラグインにアタッチされていない
	ErrNotAttached = errors.New("プラグインにアタッチされていません")
	// ErrBusy は再生中または交渉中の視聴要求
	ErrBusy = errors.New("ストリームを停止してから視聴してください")
	// ErrEmptyList はストリーム一覧の応答がない
	ErrEmptyList = errors.New("ストリーム一覧の応答がありません")
)

// NoticeKind は通知の種類
type NoticeKind string

const (
	NoticeCapability NoticeKind = "capability"
	NoticeAttach     NoticeKind = "attach"
	NoticeSignaling  NoticeKind = "signaling"
	NoticeQuery      NoticeKind = "query"
	NoticeControl    NoticeKind = "control"
	NoticeProtocol   NoticeKind = "protocol"
	NoticeTransport  NoticeKind = "transport"
	NoticeValidation NoticeKind = "validation"
)

// Notice は利用者に見せるエラー通知
// Fatal な通知の後はコントローラを作り直す必要がある
type Notice struct {
	Kind  NoticeKind `json:"kind"`
	Fatal bool       `json:"fatal"`
	Err   error      `json:"-"`
	Time  time.Time  `json:"time"`
}

func (n Notice) Error() string {
	return fmt.Sprintf("%s: %v", n.Kind, n.Err)
}

// Unwrap は元のエラーを返す
func (n Notice) Unwrap() error {
	return n.Err
}

// StreamInfo はマウントポイント
type StreamInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// StreamDetails はマウントポイントの詳細
type StreamDetails struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Metadata    string `json:"metadata"`
}
