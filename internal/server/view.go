package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"campanel/internal/camera"
	"campanel/internal/stream"
)

// イベントストリームのイベント名
const (
	EventState      = "state"
	EventParameters = "parameters"
	EventNotice     = "notice"
	EventStreams    = "streams"
	EventSelection  = "selection"
	EventInfo       = "info"
	EventMedia      = "media"
	EventBitrate    = "bitrate"
)

// 購読者ごとのバッファ。溢れた更新は捨てる
const subscriberBuffer = 32

// Update はイベントストリームに流す1件の更新
type Update struct {
	Event string
	Data  any
}

// NoticeView は通知のJSON表現
type NoticeView struct {
	Kind    stream.NoticeKind `json:"kind"`
	Fatal   bool              `json:"fatal"`
	Message string            `json:"message"`
	Time    time.Time         `json:"time"`
}

// ParametersView はパラメータ変更のJSON表現
type ParametersView struct {
	Parameters camera.Parameters `json:"parameters"`
	Changed    []string          `json:"changed"`
}

// Status はコントローラの現在の状態
type Status struct {
	State     stream.State          `json:"state"`
	Selection string                `json:"selection"`
	Bitrate   uint64                `json:"bitrate"`
	Model     string                `json:"model"`
	Notice    *NoticeView           `json:"notice,omitempty"`
	Info      *stream.StreamDetails `json:"info,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// View はコントローラから受け取った表示内容を保持し、購読者に配信する
// stream.Presenter を実装する
type View struct {
	mu          sync.RWMutex
	state       stream.State
	selection   string
	params      camera.Parameters
	notice      *NoticeView
	streams     []stream.StreamInfo
	info        *stream.StreamDetails
	media       *camera.MediaListing
	bitrate     uint64
	subscribers map[uuid.UUID]chan Update
}

// NewView は新しい View を作成する
func NewView(selection string) *View {
	return &View{
		state:       stream.StateIdle,
		selection:   selection,
		params:      camera.Parameters{},
		streams:     []stream.StreamInfo{},
		subscribers: make(map[uuid.UUID]chan Update),
	}
}

// Subscribe は更新の購読を開始する
func (v *View) Subscribe() (uuid.UUID, <-chan Update) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := uuid.New()
	ch := make(chan Update, subscriberBuffer)
	v.subscribers[id] = ch
	return id, ch
}

// Unsubscribe は購読を終了してチャンネルを閉じる
func (v *View) Unsubscribe(id uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if ch, ok := v.subscribers[id]; ok {
		close(ch)
		delete(v.subscribers, id)
	}
}

// publish は呼び出し側がロックを保持した状態で呼ぶ
func (v *View) publish(event string, data any) {
	for _, ch := range v.subscribers {
		select {
		case ch <- Update{Event: event, Data: data}:
		default:
		}
	}
}

// Status は現在の状態を返す
func (v *View) Status() Status {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return Status{
		State:     v.state,
		Selection: v.selection,
		Bitrate:   v.bitrate,
		Model:     v.params.Model(),
		Notice:    v.notice,
		Info:      v.info,
		Timestamp: time.Now(),
	}
}

// Parameters は最後に確認されたパラメータのコピーを返す
func (v *View) Parameters() camera.Parameters {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.params.Clone()
}

// Streams はマウントポイント一覧を返す
func (v *View) Streams() []stream.StreamInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]stream.StreamInfo{}, v.streams...)
}

// Media は最後に取得した録画フォルダの状態を返す。未取得なら nil
func (v *View) Media() *camera.MediaListing {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.media
}

func (v *View) StateChanged(state stream.State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.state = state
	if state != stream.StatePlaying {
		v.bitrate = 0
	}
	v.publish(EventState, state)
}

func (v *View) ParametersChanged(params camera.Parameters, changed []string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.params = params.Clone()
	v.publish(EventParameters, ParametersView{Parameters: params.Clone(), Changed: changed})
}

func (v *View) Notify(n stream.Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()

	nv := &NoticeView{Kind: n.Kind, Fatal: n.Fatal, Time: n.Time}
	if n.Err != nil {
		nv.Message = n.Err.Error()
	}
	v.notice = nv
	v.publish(EventNotice, nv)
}

func (v *View) StreamsListed(streams []stream.StreamInfo) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.streams = append([]stream.StreamInfo{}, streams...)
	v.publish(EventStreams, v.streams)
}

// Selected はコントローラが受け付けた視聴先を記録する
func (v *View) Selected(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.selection = id
	v.publish(EventSelection, id)
}

func (v *View) InfoReceived(info stream.StreamDetails) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.info = &info
	v.publish(EventInfo, info)
}

func (v *View) MediaListed(listing *camera.MediaListing) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.media = listing
	v.publish(EventMedia, listing)
}

func (v *View) Bitrate(bps uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.bitrate = bps
	v.publish(EventBitrate, bps)
}
