package janus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// メッセージ種別（"janus" フィールド）
const (
	TypeCreate    = "create"
	TypeAttach    = "attach"
	TypeMessage   = "message"
	TypeKeepalive = "keepalive"
	TypeHangup    = "hangup"
	TypeDetach    = "detach"
	TypeDestroy   = "destroy"
	TypeInfo      = "info"

	TypeSuccess  = "success"
	TypeError    = "error"
	TypeAck      = "ack"
	TypeEvent    = "event"
	TypeWebRTCUp = "webrtcup"
	TypeMedia    = "media"
	TypeSlowLink = "slowlink"
	TypeDetached = "detached"
	TypeTimeout  = "timeout"
	TypeServer   = "server_info"
)

// ErrTransportClosed はトランスポートが閉じられた後の送信
var ErrTransportClosed = errors.New("トランスポートは閉じられています")

// JSEP はSDPのオファーまたはアンサー
type JSEP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// PluginData はプラグインからの応答
type PluginData struct {
	Plugin string          `json:"plugin"`
	Data   json.RawMessage `json:"data"`
}

// ErrorInfo はゲートウェイのエラー
type ErrorInfo struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("janus エラー %d: %s", e.Code, e.Reason)
}

// IDData は create / attach の応答に含まれるID
type IDData struct {
	ID uint64 `json:"id"`
}

// Message はゲートウェイとやり取りするJSONメッセージ
// 要求・応答・イベントのすべてを表す
type Message struct {
	Janus       string      `json:"janus"`
	Transaction string      `json:"transaction,omitempty"`
	SessionID   uint64      `json:"session_id,omitempty"`
	HandleID    uint64      `json:"handle_id,omitempty"`
	Sender      uint64      `json:"sender,omitempty"`
	Plugin      string      `json:"plugin,omitempty"`
	OpaqueID    string      `json:"opaque_id,omitempty"`
	Body        any         `json:"body,omitempty"`
	JSEP        *JSEP       `json:"jsep,omitempty"`
	Data        *IDData     `json:"data,omitempty"`
	PluginData  *PluginData `json:"plugindata,omitempty"`
	Error       *ErrorInfo  `json:"error,omitempty"`

	// slowlink
	Uplink bool `json:"uplink,omitempty"`
	Lost   int  `json:"lost,omitempty"`
	NACKs  int  `json:"nacks,omitempty"`

	// media
	Type      string `json:"type,omitempty"`
	Receiving *bool  `json:"receiving,omitempty"`

	// hangup
	Reason string `json:"reason,omitempty"`
}

// Err はエラー応答であればそのエラーを返す
func (m *Message) Err() error {
	if m.Janus == TypeError {
		if m.Error != nil {
			return m.Error
		}
		return &ErrorInfo{Reason: "不明なエラー"}
	}
	return nil
}

// DecodePluginData はプラグインデータを v に展開する
// 数値は json.Number のまま残すので、大きなIDも桁落ちしない
func (m *Message) DecodePluginData(v any) error {
	if m.PluginData == nil || len(m.PluginData.Data) == 0 {
		return errors.New("プラグインデータがありません")
	}
	dec := json.NewDecoder(bytes.NewReader(m.PluginData.Data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("プラグインデータの解析に失敗: %w", err)
	}
	return nil
}

// resolves は同期応答として待ち受け側に渡すメッセージかを返す
func (m *Message) resolves() bool {
	switch m.Janus {
	case TypeSuccess, TypeError, TypeAck, TypeServer:
		return true
	}
	return false
}

// decodeMessages は単体またはJSON配列のメッセージを展開する
func decodeMessages(body []byte) ([]*Message, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var list []*Message
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("メッセージの解析に失敗: %w", err)
		}
		return list, nil
	}
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("メッセージの解析に失敗: %w", err)
	}
	return []*Message{&msg}, nil
}
