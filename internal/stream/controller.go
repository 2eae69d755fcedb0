package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pion/logging"
	"go.uber.org/multierr"

	"campanel/internal/camera"
	"campanel/internal/janus"
	applog "campanel/internal/logging"
	"campanel/internal/peer"
)

// Connector はシグナリングのセッションを作成する
type Connector interface {
	Create(ctx context.Context, onEvent janus.EventHandler) (janus.Session, error)
}

// PeerFactory は受信専用の WebRTC 接続を作成する
type PeerFactory interface {
	Supported() error
	NewConnection(cb peer.Callbacks) (peer.Connection, error)
}

// Presenter は状態の変化を表示する
type Presenter interface {
	StateChanged(state State)
	ParametersChanged(params camera.Parameters, changed []string)
	Notify(n Notice)
	StreamsListed(streams []StreamInfo)
	// Selected は受け付けた視聴要求のマウントポイントを通知する
	Selected(id string)
	InfoReceived(info StreamDetails)
	MediaListed(listing *camera.MediaListing)
	Bitrate(bps uint64)
}

// Config はコントローラの設定
type Config struct {
	Plugin string
	// Stream は既定で視聴するマウントポイント
	Stream          string
	BitrateInterval time.Duration
	RequestTimeout  time.Duration

	// 待ち時間のある処理の実行方法。nil なら Run が直列ワーカーを起動する
	SignalingExecutor Executor
	CameraExecutor    Executor

	LoggerFactory logging.LoggerFactory
}

const eventBuffer = 256

// Controller はストリームのライフサイクルを制御する
type Controller struct {
	cfg       Config
	signaling Connector
	peers     PeerFactory
	camera    camera.Control
	view      Presenter
	log       logging.LeveledLogger

	events chan Event
	done   chan struct{}
	ctx    context.Context
	now    func() time.Time

	sigExec Executor
	camExec Executor

	// 以下は制御ループだけが触る
	started      bool
	state        State
	session      janus.Session
	handle       janus.Handle
	conn         peer.Connection
	selection    string
	stopSent     bool
	trackSeen    bool
	stopSampling context.CancelFunc
	params       camera.Parameters
}

// NewController は新しい Controller を作成する
func NewController(cfg Config, signaling Connector, peers PeerFactory, cam camera.Control, view Presenter) *Controller {
	if cfg.Plugin == "" {
		cfg.Plugin = "janus.plugin.streaming"
	}
	if cfg.BitrateInterval <= 0 {
		cfg.BitrateInterval = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	return &Controller{
		cfg:       cfg,
		signaling: signaling,
		peers:     peers,
		camera:    cam,
		view:      view,
		log:       cfg.LoggerFactory.NewLogger(applog.ScopeStream),
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
		ctx:       context.Background(),
		now:       time.Now,
		sigExec:   cfg.SignalingExecutor,
		camExec:   cfg.CameraExecutor,
		state:     StateIdle,
		selection: cfg.Stream,
		params:    camera.Parameters{},
	}
}

// Run は ctx が終わるまでイベントを処理し、終了時にセッションを破棄する
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	c.ctx = ctx
	if c.sigExec == nil {
		c.sigExec = Serial(ctx)
	}
	if c.camExec == nil {
		c.camExec = Serial(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return c.teardown()
		case ev := <-c.events:
			c.dispatch(ev)
		}
	}
}

// 利用者からの操作。いずれも要求を積むだけですぐに戻る

// Start はセッションを開始する。2回目以降は何もしない
func (c *Controller) Start() { c.post(startRequested{}) }

// Watch はマウントポイントを視聴する
func (c *Controller) Watch(id string) { c.post(watchRequested{id: id}) }

// Stop はストリームを停止する
func (c *Controller) Stop() { c.post(stopRequested{}) }

// ListStreams はマウントポイントの一覧を取得する
func (c *Controller) ListStreams() { c.post(listRequested{}) }

// Refresh はカメラのパラメータを取得し直す
func (c *Controller) Refresh() { c.post(refreshRequested{}) }

// ChangeParameter はカメラのパラメータを変更する
func (c *Controller) ChangeParameter(name, value string) {
	c.post(changeRequested{name: name, value: value})
}

// Toggle は切り替え式のパラメータを反転する
func (c *Controller) Toggle(name string) { c.post(toggleRequested{name: name}) }

// ZoomIn は一段ズームインする
func (c *Controller) ZoomIn() { c.post(zoomRequested{delta: 1}) }

// ZoomOut は一段ズームアウトする
func (c *Controller) ZoomOut() { c.post(zoomRequested{delta: -1}) }

// ListMedia は録画フォルダの一覧を取得する
func (c *Controller) ListMedia() { c.post(mediaRequested{op: mediaList}) }

// RemoveMedia は録画ファイルを削除する
func (c *Controller) RemoveMedia(file string) { c.post(mediaRequested{op: mediaRemove, file: file}) }

// ClearMedia は録画ファイルを全て削除する
func (c *Controller) ClearMedia() { c.post(mediaRequested{op: mediaClear}) }

// RestartCamera はカメラのパイプラインを再起動する
func (c *Controller) RestartCamera() { c.post(restartRequested{}) }

func (c *Controller) post(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// dispatch はイベントの種類ごとのハンドラを呼ぶ
func (c *Controller) dispatch(ev Event) {
	switch e := ev.(type) {
	case startRequested:
		c.handleStart()
	case sessionCreated:
		c.handleSessionCreated(e)
	case attached:
		c.handleAttached(e)
	case listRequested:
		c.listStreams()
	case listResult:
		c.handleListResult(e)
	case watchRequested:
		c.watch(e.id)
	case infoResult:
		c.handleInfoResult(e)
	case pluginMessage:
		c.handlePluginMessage(e)
	case answerReady:
		c.handleAnswerReady(e)
	case remoteTrack:
		c.handleRemoteTrack(e)
	case iceState:
		c.handleICEState(e)
	case dataReceived:
		c.log.Infof("データチャネル: %s", e.text)
	case bitrateSample:
		c.view.Bitrate(e.bps)
	case slowLink:
		c.handleSlowLink(e)
	case cleanup:
		c.handleCleanup(e)
	case sessionLost:
		c.fail(NoticeTransport, fmt.Errorf("%w: %v", ErrReloadRequired, e.err))
	case stopRequested:
		c.stop()
	case refreshRequested:
		c.refresh()
	case changeRequested:
		c.changeParameter(e.name, e.value)
	case toggleRequested:
		c.handleToggle(e)
	case zoomRequested:
		c.handleZoom(e)
	case paramResult:
		c.handleParamResult(e)
	case mediaRequested:
		c.handleMedia(e)
	case mediaResult:
		c.handleMediaResult(e)
	case restartRequested:
		c.restart()
	case noticeEvent:
		c.notify(e.notice)
	default:
		c.log.Warnf("不明なイベント: %T", ev)
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.log.Infof("状態: %s -> %s", c.state, s)
	c.state = s
	c.view.StateChanged(s)
}

func (c *Controller) notify(n Notice) {
	if n.Time.IsZero() {
		n.Time = c.now()
	}
	if n.Fatal {
		c.log.Errorf("%v", n)
	} else {
		c.log.Warnf("%v", n)
	}
	c.view.Notify(n)
}

// fail は致命的なエラーを通知して error 状態にする
func (c *Controller) fail(kind NoticeKind, err error) {
	c.stopSampler()
	c.releaseMedia()
	c.notify(Notice{Kind: kind, Fatal: true, Err: err})
	c.setState(StateError)
}

// requestContext は要求ごとのタイムアウト付きコンテキストを返す
func (c *Controller) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
}

func (c *Controller) handleStart() {
	if c.started {
		return
	}
	c.started = true

	if err := c.peers.Supported(); err != nil {
		c.notify(Notice{Kind: NoticeCapability, Fatal: true, Err: fmt.Errorf("%w: %v", ErrUnsupported, err)})
		c.setState(StateError)
		return
	}

	c.refresh()
	c.sigExec(func() {
		s, err := c.signaling.Create(c.ctx, c.onSessionEvent)
		c.post(sessionCreated{session: s, err: err})
	})
}

func (c *Controller) handleSessionCreated(e sessionCreated) {
	if e.err != nil {
		c.fail(NoticeAttach, fmt.Errorf("%w: %v", ErrReloadRequired, e.err))
		return
	}
	c.session = e.session
	c.setState(StateAttaching)

	plugin := c.cfg.Plugin
	c.sigExec(func() {
		ctx, cancel := c.requestContext()
		defer cancel()
		h, err := e.session.Attach(ctx, plugin, c.onHandleEvent)
		c.post(attached{handle: h, err: err})
	})
}

func (c *Controller) handleAttached(e attached) {
	if e.err != nil {
		c.fail(NoticeAttach, fmt.Errorf("%w: %v", ErrReloadRequired, e.err))
		return
	}
	c.handle = e.handle
	c.setState(StateAttached)

	c.listStreams()
	c.watch(c.selection)
}

func (c *Controller) listStreams() {
	if c.handle == nil {
		c.notify(Notice{Kind: NoticeValidation, Err: ErrNotAttached})
		return
	}
	if c.state == StateAttached {
		c.setState(StateListing)
	}

	h := c.handle
	c.sigExec(func() {
		ctx, cancel := c.requestContext()
		defer cancel()
		resp, err := h.Message(ctx, map[string]any{"request": "list"}, nil)
		if err != nil {
			c.post(listResult{err: err})
			return
		}
		streams, err := ParseStreamList(resp)
		c.post(listResult{streams: streams, err: err})
	})
}

func (c *Controller) handleListResult(e listResult) {
	if e.err != nil {
		c.notify(Notice{Kind: NoticeQuery, Err: e.err})
		return
	}
	c.view.StreamsListed(e.streams)
}

// watch は視聴要求と詳細の問い合わせを送る
func (c *Controller) watch(id string) {
	if id == "" {
		c.notify(Notice{Kind: NoticeValidation, Err: ErrNoSelection})
		return
	}
	if c.handle == nil {
		c.notify(Notice{Kind: NoticeValidation, Err: ErrNotAttached})
		return
	}
	switch c.state {
	case StateError:
		c.notify(Notice{Kind: NoticeValidation, Err: ErrReloadRequired})
		return
	case StateNegotiating, StatePlaying:
		c.notify(Notice{Kind: NoticeValidation, Err: ErrBusy})
		return
	}

	c.selection = id
	c.stopSent = false
	c.view.Selected(id)
	c.setState(StateWatching)

	h := c.handle
	mountpoint := watchID(id)
	c.sigExec(func() {
		ctx, cancel := c.requestContext()
		defer cancel()
		if _, err := h.Message(ctx, map[string]any{"request": "watch", "id": mountpoint}, nil); err != nil {
			c.post(noticeEvent{Notice{Kind: NoticeSignaling, Err: err}})
			return
		}
		resp, err := h.Message(ctx, map[string]any{"request": "info", "id": mountpoint}, nil)
		if err != nil {
			c.post(infoResult{err: err})
			return
		}
		info, err := ParseStreamInfo(resp)
		c.post(infoResult{info: info, err: err})
	})
}

func (c *Controller) handleInfoResult(e infoResult) {
	if e.err != nil {
		c.notify(Notice{Kind: NoticeQuery, Err: e.err})
		return
	}
	if e.info != nil && e.info.Metadata != "" {
		c.view.InfoReceived(*e.info)
	}
}

// pluginPayload は streaming プラグインのイベント
type pluginPayload struct {
	Result *struct {
		Status string `json:"status"`
	} `json:"result"`
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

func (c *Controller) handlePluginMessage(e pluginMessage) {
	var payload pluginPayload
	if len(e.data) > 0 {
		if err := json.Unmarshal(e.data, &payload); err != nil {
			c.notify(Notice{Kind: NoticeProtocol, Err: fmt.Errorf("プラグインイベントの解析に失敗: %w", err)})
			return
		}
	}

	if payload.Error != "" {
		c.stop()
		c.fail(NoticeSignaling, fmt.Errorf("%s (%d)", payload.Error, payload.ErrorCode))
		return
	}
	if payload.Result != nil {
		c.handleStatus(payload.Result.Status)
	}
	if e.jsep != nil {
		c.handleOffer(e.jsep)
	}
}

func (c *Controller) handleStatus(status string) {
	switch status {
	case "starting", "preparing", "":
	case "started":
		if c.state != StateError {
			c.stopSent = false
			c.setState(StatePlaying)
		}
	case "stopped":
		c.stop()
	default:
		c.log.Debugf("不明なステータス: %s", status)
	}
}

func (c *Controller) handleOffer(jsep *janus.JSEP) {
	if jsep.Type != "offer" {
		c.notify(Notice{Kind: NoticeProtocol, Err: fmt.Errorf("%w: %s", ErrUnexpectedOffer, jsep.Type)})
		return
	}
	if c.state != StateWatching {
		c.notify(Notice{Kind: NoticeProtocol, Err: fmt.Errorf("%w: 状態 %s", ErrUnexpectedOffer, c.state)})
		return
	}

	var conn peer.Connection
	conn, err := c.peers.NewConnection(peer.Callbacks{
		OnTrack: func(kind, codec string) {
			c.post(remoteTrack{conn: conn, kind: kind, codec: codec})
		},
		OnICEState: func(state string) {
			c.post(iceState{conn: conn, state: state})
		},
		OnData: func(text string) {
			c.post(dataReceived{text: text})
		},
	})
	if err != nil {
		c.fail(NoticeTransport, fmt.Errorf("%w: %v", ErrReloadRequired, err))
		return
	}
	c.conn = conn
	c.setState(StateNegotiating)

	offer := jsep.SDP
	c.sigExec(func() {
		ctx, cancel := c.requestContext()
		defer cancel()
		sdp, err := conn.Answer(ctx, offer, func(answer string) string {
			return PreserveStereo(offer, answer)
		})
		c.post(answerReady{conn: conn, sdp: sdp, err: err})
	})
}

func (c *Controller) handleAnswerReady(e answerReady) {
	if e.conn != c.conn || c.state != StateNegotiating {
		return
	}
	if e.err != nil {
		c.fail(NoticeTransport, fmt.Errorf("%w: アンサーの作成に失敗: %v", ErrReloadRequired, e.err))
		return
	}

	h := c.handle
	c.sigExec(func() {
		ctx, cancel := c.requestContext()
		defer cancel()
		if _, err := h.Message(ctx, map[string]any{"request": "start"}, &janus.JSEP{Type: "answer", SDP: e.sdp}); err != nil {
			c.post(noticeEvent{Notice{Kind: NoticeSignaling, Err: err}})
		}
	})
}

func (c *Controller) handleRemoteTrack(e remoteTrack) {
	if e.conn != c.conn || c.conn == nil {
		return
	}
	c.log.Infof("リモートトラック: %s %s", e.kind, e.codec)
	if c.trackSeen {
		return
	}
	c.trackSeen = true
	c.startSampler(e.conn)

	now := c.now()
	c.camExec(func() {
		ctx, cancel := c.requestContext()
		defer cancel()
		params, err := c.camera.SyncTime(ctx, now)
		c.post(paramResult{name: "time", params: params, err: err})
	})
}

func (c *Controller) handleICEState(e iceState) {
	if e.conn != c.conn {
		return
	}
	switch e.state {
	case "disconnected", "failed":
		c.fail(NoticeTransport, fmt.Errorf("%w: ICE %s", ErrReloadRequired, e.state))
	}
}

func (c *Controller) startSampler(conn peer.Connection) {
	c.stopSampler()
	ctx, cancel := context.WithCancel(c.ctx)
	c.stopSampling = cancel

	interval := c.cfg.BitrateInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if bps, ok := conn.Bitrate(); ok {
					c.post(bitrateSample{bps: bps})
				}
			}
		}
	}()
}

func (c *Controller) stopSampler() {
	if c.stopSampling != nil {
		c.stopSampling()
		c.stopSampling = nil
	}
}

func (c *Controller) releaseMedia() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.log.Warnf("接続の切断に失敗: %v", err)
	}
	c.conn = nil
	c.trackSeen = false
}

func (c *Controller) handleSlowLink(e slowLink) {
	c.log.Infof("回線品質の低下: uplink=%v lost=%d nacks=%d", e.uplink, e.lost, e.nacks)
	bitrate, ok := camera.SlowLinkBitrate(c.params, e.lost)
	if !ok {
		return
	}
	c.changeParameter("bitrate", strconv.Itoa(bitrate))
}

func (c *Controller) handleCleanup(e cleanup) {
	c.log.Infof("後片付けの通知: %s", e.reason)
	c.stopSampler()
	c.releaseMedia()
	if c.state != StateError {
		c.setState(StateIdle)
	}
}

// stop は停止要求とハングアップを送り、接続を閉じる
// 停止済みなら何もしない
func (c *Controller) stop() {
	if c.stopSent || c.state == StateError {
		return
	}
	c.stopSent = true
	c.stopSampler()

	if h := c.handle; h != nil {
		c.sigExec(func() {
			ctx, cancel := c.requestContext()
			defer cancel()
			_, err := h.Message(ctx, map[string]any{"request": "stop"}, nil)
			err = multierr.Append(err, h.Hangup(ctx))
			if err != nil {
				c.post(noticeEvent{Notice{Kind: NoticeSignaling, Err: err}})
			}
		})
	}
	c.releaseMedia()
	c.setState(StateStopped)
}

func (c *Controller) refresh() {
	c.camExec(func() {
		ctx, cancel := c.requestContext()
		defer cancel()
		params, err := c.camera.Display(ctx)
		c.post(paramResult{params: params, err: err})
	})
}

// changeParameter はカメラに変更を要求する
// パラメータは応答を受け取るまで変えない
func (c *Controller) changeParameter(name, value string) {
	if !camera.IsKnown(name) || camera.IsAction(name) {
		c.notify(Notice{Kind: NoticeValidation, Err: fmt.Errorf("%w: %s", camera.ErrUnknownParameter, name)})
		return
	}
	c.camExec(func() {
		ctx, cancel := c.requestContext()
		defer cancel()
		params, err := c.camera.Change(ctx, name, value)
		c.post(paramResult{name: name, params: params, err: err})
	})
}

func (c *Controller) handleToggle(e toggleRequested) {
	next, err := camera.ToggleNext(e.name, c.params[e.name])
	if err != nil {
		c.notify(Notice{Kind: NoticeValidation, Err: err})
		return
	}
	c.changeParameter(e.name, next)
}

func (c *Controller) handleZoom(e zoomRequested) {
	mode, ok := camera.ZoomMode(c.params, e.delta)
	if !ok {
		c.log.Debugf("ズームできません: sensor_mode=%s delta=%d", c.params["sensor_mode"], e.delta)
		return
	}
	c.changeParameter("sensor_mode", mode)
}

func (c *Controller) restart() {
	c.camExec(func() {
		ctx, cancel := c.requestContext()
		defer cancel()
		params, err := c.camera.Restart(ctx)
		c.post(paramResult{name: "restart", params: params, err: err})
	})
}

func (c *Controller) handleParamResult(e paramResult) {
	if e.err != nil {
		c.notify(Notice{Kind: NoticeControl, Err: e.err})
		return
	}
	changed := c.params.Diff(e.params)
	c.params = e.params
	c.view.ParametersChanged(e.params.Clone(), changed)
}

func (c *Controller) handleMedia(e mediaRequested) {
	if e.op == mediaList && c.params["record"] == "1" {
		c.changeParameter("record", "0")
	}
	c.camExec(func() {
		ctx, cancel := c.requestContext()
		defer cancel()
		var (
			listing *camera.MediaListing
			err     error
		)
		switch e.op {
		case mediaList:
			listing, err = c.camera.Media(ctx)
		case mediaRemove:
			if e.file == "" {
				err = errors.New("削除するファイルが指定されていません")
				break
			}
			listing, err = c.camera.Remove(ctx, e.file)
		case mediaClear:
			listing, err = c.camera.Remove(ctx, "")
		}
		c.post(mediaResult{listing: listing, err: err})
	})
}

func (c *Controller) handleMediaResult(e mediaResult) {
	if e.err != nil {
		c.notify(Notice{Kind: NoticeControl, Err: e.err})
		return
	}
	c.view.MediaListed(e.listing)
}

// onSessionEvent はセッション宛てのイベントを受け取る（シグナリングのゴルーチン）
func (c *Controller) onSessionEvent(msg *janus.Message) {
	switch msg.Janus {
	case janus.TypeTimeout:
		c.post(sessionLost{err: errors.New("セッションがタイムアウトしました")})
	case janus.TypeError:
		c.post(sessionLost{err: msg.Err()})
	}
}

// onHandleEvent はハンドル宛てのイベントを受け取る（シグナリングのゴルーチン）
func (c *Controller) onHandleEvent(msg *janus.Message) {
	switch msg.Janus {
	case janus.TypeEvent:
		var data []byte
		if msg.PluginData != nil {
			data = msg.PluginData.Data
		}
		c.post(pluginMessage{data: data, jsep: msg.JSEP})
	case janus.TypeSlowLink:
		c.post(slowLink{uplink: msg.Uplink, lost: msg.Lost, nacks: msg.NACKs})
	case janus.TypeHangup:
		c.post(cleanup{reason: msg.Reason})
	case janus.TypeDetached:
		c.post(cleanup{reason: "detached"})
	case janus.TypeWebRTCUp:
		c.log.Info("PeerConnection が確立しました")
	case janus.TypeMedia:
		if msg.Receiving != nil {
			c.log.Infof("メディア %s 受信中=%v", msg.Type, *msg.Receiving)
		}
	default:
		c.log.Debugf("未処理のイベント: %s", msg.Janus)
	}
}

// teardown はセッションを破棄する
func (c *Controller) teardown() error {
	c.stopSampler()
	c.releaseMedia()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	var err error
	if c.handle != nil {
		err = multierr.Append(err, c.handle.Detach(ctx))
		c.handle = nil
	}
	if c.session != nil {
		err = multierr.Append(err, c.session.Destroy(ctx))
		c.session = nil
	}
	return err
}

// watchID は数値として解釈できるIDを数値で送る
func watchID(id string) any {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil && n > 0 {
		return n
	}
	return id
}

// ParseStreamList は list 要求の応答を解析する
func ParseStreamList(resp *janus.Message) ([]StreamInfo, error) {
	if resp == nil || resp.PluginData == nil {
		return nil, ErrEmptyList
	}
	var payload struct {
		List []struct {
			ID          any    `json:"id"`
			Description string `json:"description"`
			Type        string `json:"type"`
		} `json:"list"`
	}
	if err := resp.DecodePluginData(&payload); err != nil {
		return nil, err
	}
	if payload.List == nil {
		return nil, ErrEmptyList
	}

	streams := make([]StreamInfo, 0, len(payload.List))
	for _, s := range payload.List {
		streams = append(streams, StreamInfo{ID: fmt.Sprint(s.ID), Description: s.Description, Type: s.Type})
	}
	return streams, nil
}

// ParseStreamInfo は info 要求の応答を解析する
func ParseStreamInfo(resp *janus.Message) (*StreamDetails, error) {
	if resp == nil || resp.PluginData == nil {
		return nil, nil
	}
	var payload struct {
		Info *struct {
			ID          any    `json:"id"`
			Description string `json:"description"`
			Metadata    string `json:"metadata"`
		} `json:"info"`
	}
	if err := resp.DecodePluginData(&payload); err != nil {
		return nil, err
	}
	if payload.Info == nil {
		return nil, nil
	}
	return &StreamDetails{
		ID:          fmt.Sprint(payload.Info.ID),
		Description: payload.Info.Description,
		Metadata:    payload.Info.Metadata,
	}, nil
}
