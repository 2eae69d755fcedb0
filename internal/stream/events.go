package stream

import (
	"campanel/internal/camera"
	"campanel/internal/janus"
	"campanel/internal/peer"
)

// Event は制御ループで処理するイベント
type Event interface{}

// 利用者からの要求
type (
	startRequested   struct{}
	watchRequested   struct{ id string }
	stopRequested    struct{}
	listRequested    struct{}
	refreshRequested struct{}
	changeRequested  struct{ name, value string }
	toggleRequested  struct{ name string }
	zoomRequested    struct{ delta int }
	mediaRequested   struct {
		op   mediaOp
		file string
	}
	restartRequested struct{}
)

type mediaOp int

const (
	mediaList mediaOp = iota
	mediaRemove
	mediaClear
)

// シグナリングからの結果とイベント
type (
	sessionCreated struct {
		session janus.Session
		err     error
	}
	attached struct {
		handle janus.Handle
		err    error
	}
	listResult struct {
		streams []StreamInfo
		err     error
	}
	infoResult struct {
		info *StreamDetails
		err  error
	}
	pluginMessage struct {
		data []byte
		jsep *janus.JSEP
	}
	slowLink struct {
		uplink bool
		lost   int
		nacks  int
	}
	cleanup     struct{ reason string }
	sessionLost struct{ err error }
)

// WebRTC 接続からのイベント
type (
	answerReady struct {
		conn peer.Connection
		sdp  string
		err  error
	}
	remoteTrack struct {
		conn  peer.Connection
		kind  string
		codec string
	}
	iceState struct {
		conn  peer.Connection
		state string
	}
	dataReceived  struct{ text string }
	bitrateSample struct{ bps uint64 }
)

// カメラからの結果
type (
	paramResult struct {
		name   string
		params camera.Parameters
		err    error
	}
	mediaResult struct {
		listing *camera.MediaListing
		err     error
	}
)

// noticeEvent は要求の失敗を通知する
type noticeEvent struct{ notice Notice }
