package stream

import (
	"sync"

	"campanel/internal/camera"
)

// Recorder は受け取った表示内容を記録する Presenter
type Recorder struct {
	mu         sync.Mutex
	States     []State
	Params     camera.Parameters
	Changed    [][]string
	Notices    []Notice
	Streams    []StreamInfo
	Selections []string
	Info       *StreamDetails
	Media      *camera.MediaListing
	Bitrates   []uint64
}

// NewRecorder は新しい Recorder を作成する
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) StateChanged(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.States = append(r.States, state)
}

func (r *Recorder) ParametersChanged(params camera.Parameters, changed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Params = params
	r.Changed = append(r.Changed, changed)
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notices = append(r.Notices, n)
}

func (r *Recorder) StreamsListed(streams []StreamInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Streams = streams
}

func (r *Recorder) Selected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Selections = append(r.Selections, id)
}

func (r *Recorder) InfoReceived(info StreamDetails) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Info = &info
}

func (r *Recorder) MediaListed(listing *camera.MediaListing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Media = listing
}

func (r *Recorder) Bitrate(bps uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Bitrates = append(r.Bitrates, bps)
}

// LastNotice は最後の通知を返す
func (r *Recorder) LastNotice() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Notices) == 0 {
		return Notice{}, false
	}
	return r.Notices[len(r.Notices)-1], true
}
