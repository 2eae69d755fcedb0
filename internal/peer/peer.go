// Package peer は受信専用の WebRTC 接続を扱います。
//
// ゲートウェイからのオファーに対して受信専用のアンサーを作成し、
// 受信したトラックは録画ディレクトリが設定されていればファイルに保存します。
package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"go.uber.org/multierr"

	applog "campanel/internal/logging"
)

// ErrClosed は閉じられた接続への操作
var ErrClosed = errors.New("接続は閉じられています")

// Callbacks は接続で発生した出来事の通知先
// いずれも nil でよい
type Callbacks struct {
	// OnTrack はリモートトラックの受信開始時に呼ばれる
	OnTrack func(kind, codec string)
	// OnICEState はICE接続状態の変化時に呼ばれる（"connected", "disconnected" など）
	OnICEState func(state string)
	// OnData はデータチャネルでテキストを受信したときに呼ばれる
	OnData func(text string)
}

// Connection は受信専用の PeerConnection
type Connection interface {
	// Answer はオファーを適用し、customize で加工したアンサーSDPを返す
	Answer(ctx context.Context, offer string, customize func(string) string) (string, error)

	// Bitrate は前回の呼び出しからの映像の受信ビットレート（bps）を返す
	Bitrate() (uint64, bool)

	// Close は接続と録画を閉じる。複数回呼んでもよい
	Close() error
}

// Config は WebRTC の設定
type Config struct {
	ICEServers []string
	// RecordDir が空でなければ受信トラックを保存する
	RecordDir        string
	GatheringTimeout time.Duration

	LoggerFactory logging.LoggerFactory
}

// Factory は Connection を作成する
type Factory struct {
	cfg       Config
	api       *webrtc.API
	iceServer []webrtc.ICEServer
	log       logging.LeveledLogger
	initErr   error
}

// NewFactory は新しい Factory を作成する
// 初期化に失敗した場合も Factory を返し、Supported がそのエラーを返す
func NewFactory(cfg Config) *Factory {
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if cfg.GatheringTimeout <= 0 {
		cfg.GatheringTimeout = 10 * time.Second
	}
	f := &Factory{cfg: cfg, log: cfg.LoggerFactory.NewLogger(applog.ScopePeer)}
	f.api, f.iceServer, f.initErr = newAPI(cfg)
	return f
}

func newAPI(cfg Config) (*webrtc.API, []webrtc.ICEServer, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, nil, fmt.Errorf("コーデックの登録に失敗: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, nil, fmt.Errorf("インターセプタの登録に失敗: %w", err)
	}

	servers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, raw := range cfg.ICEServers {
		if _, err := stun.ParseURI(raw); err != nil {
			return nil, nil, fmt.Errorf("ICEサーバーのURLが不正です %q: %w", raw, err)
		}
		servers = append(servers, webrtc.ICEServer{URLs: []string{raw}})
	}

	se := webrtc.SettingEngine{LoggerFactory: cfg.LoggerFactory}
	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)
	return api, servers, nil
}

// Supported は WebRTC が利用可能かを返す
func (f *Factory) Supported() error {
	return f.initErr
}

// NewConnection は新しい受信専用の接続を作成する
func (f *Factory) NewConnection(cb Callbacks) (Connection, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: f.iceServer})
	if err != nil {
		return nil, fmt.Errorf("PeerConnectionの作成に失敗: %w", err)
	}

	r := &receiver{
		pc:       pc,
		cb:       cb,
		log:      f.log,
		record:   f.cfg.RecordDir,
		gatherTO: f.cfg.GatheringTimeout,
	}
	pc.OnTrack(r.onTrack)
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		f.log.Infof("ICE接続状態: %s", state)
		if cb.OnICEState != nil {
			cb.OnICEState(state.String())
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if msg.IsString && cb.OnData != nil {
				cb.OnData(string(msg.Data))
			}
		})
	})
	return r, nil
}

// receiver は Connection の実装
type receiver struct {
	pc       *webrtc.PeerConnection
	cb       Callbacks
	log      logging.LeveledLogger
	record   string
	gatherTO time.Duration

	mu        sync.Mutex
	closed    bool
	sinks     []*sink
	lastBytes uint64
	lastAt    time.Time
	wg        sync.WaitGroup
}

func (r *receiver) Answer(ctx context.Context, offer string, customize func(string) string) (string, error) {
	if r.isClosed() {
		return "", ErrClosed
	}

	if err := r.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", fmt.Errorf("オファーの適用に失敗: %w", err)
	}
	answer, err := r.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("アンサーの作成に失敗: %w", err)
	}
	if customize != nil {
		answer.SDP = customize(answer.SDP)
	}

	gatherComplete := webrtc.GatheringCompletePromise(r.pc)
	if err := r.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("アンサーの適用に失敗: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(r.gatherTO):
		r.log.Warn("ICE候補の収集がタイムアウトしました")
	}

	local := r.pc.LocalDescription()
	if local == nil {
		return "", errors.New("ローカルSDPがありません")
	}
	return local.SDP, nil
}

func (r *receiver) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	codec := track.Codec().MimeType
	kind := track.Kind().String()
	r.log.Infof("トラックを受信: %s %s", kind, codec)
	if r.cb.OnTrack != nil {
		r.cb.OnTrack(kind, codec)
	}

	var s *sink
	if r.record != "" {
		var err error
		s, err = openSink(r.record, codec)
		if err != nil {
			r.log.Warnf("録画を開始できません: %v", err)
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		if s != nil {
			_ = s.Close()
		}
		return
	}
	if s != nil {
		r.sinks = append(r.sinks, s)
	}
	r.wg.Add(1)
	r.mu.Unlock()

	defer r.wg.Done()
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if s == nil {
			continue
		}
		if err := s.WriteRTP(pkt); err != nil {
			r.log.Warnf("録画の書き込みに失敗: %v", err)
		}
	}
}

func (r *receiver) Bitrate() (uint64, bool) {
	if r.isClosed() {
		return 0, false
	}

	var received uint64
	found := false
	for _, stat := range r.pc.GetStats() {
		in, ok := stat.(webrtc.InboundRTPStreamStats)
		if !ok || in.Kind != "video" {
			continue
		}
		received += in.BytesReceived
		found = true
	}
	if !found {
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	prevBytes, prevAt := r.lastBytes, r.lastAt
	r.lastBytes, r.lastAt = received, now
	if prevAt.IsZero() || received < prevBytes {
		return 0, false
	}
	elapsed := now.Sub(prevAt).Seconds()
	if elapsed <= 0 {
		return 0, false
	}
	return uint64(float64(received-prevBytes) * 8 / elapsed), true
}

func (r *receiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sinks := r.sinks
	r.sinks = nil
	r.mu.Unlock()

	err := r.pc.Close()
	r.wg.Wait()
	for _, s := range sinks {
		err = multierr.Append(err, s.Close())
	}
	return err
}

func (r *receiver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
