package stream

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"campanel/internal/camera"
	"campanel/internal/janus"
	"campanel/internal/logging"
	"campanel/internal/peer"
)

const (
	stereoOffer = "v=0\r\n" +
		"o=- 1 1 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n" +
		"a=fmtp:111 minptime=10;useinbandfec=1;stereo=1\r\n" +
		"a=sendonly\r\n"
	monoAnswer = "v=0\r\n" +
		"o=- 2 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n" +
		"a=fmtp:111 minptime=10;useinbandfec=1\r\n" +
		"a=recvonly\r\n"
)

type testRig struct {
	c     *Controller
	gw    *janus.MockGateway
	peers *peer.MockFactory
	cam   *camera.MockClient
	view  *Recorder
}

func initialParameters() camera.Parameters {
	return camera.Parameters{
		"model": "imx219", "width": "800", "height": "608", "framerate": "15",
		"bitrate": "4000000", "sensor_mode": "0", "hflip": "0", "record": "0",
		"stats": camera.StatsOff,
	}
}

func newRig(t *testing.T, stream string) *testRig {
	t.Helper()
	gw := janus.NewMockGateway()
	gw.SetResponse("list", map[string]any{
		"streaming": "list",
		"list": []map[string]any{
			{"id": 314, "description": "pi camera", "type": "live"},
			{"id": 1234567, "description": "big id", "type": "live"},
		},
	})
	gw.SetResponse("info", map[string]any{
		"streaming": "info",
		"info":      map[string]any{"id": 314, "description": "pi camera", "metadata": "imx219 on pi4"},
	})

	rig := &testRig{
		gw:    gw,
		peers: peer.NewMockFactory(monoAnswer),
		cam:   camera.NewMockClient(initialParameters()),
		view:  NewRecorder(),
	}
	rig.c = NewController(Config{
		Stream:            stream,
		BitrateInterval:   time.Hour,
		SignalingExecutor: Inline,
		CameraExecutor:    Inline,
		LoggerFactory:     logging.Discard(),
	}, rig.gw, rig.peers, rig.cam, rig.view)
	return rig
}

// drain は積まれたイベントを全て処理する
func (r *testRig) drain() {
	for {
		select {
		case ev := <-r.c.events:
			r.c.dispatch(ev)
		default:
			return
		}
	}
}

func (r *testRig) do(ev Event) {
	r.c.dispatch(ev)
	r.drain()
}

func (r *testRig) status(status string) {
	r.gw.EmitPlugin(map[string]any{"streaming": "event", "result": map[string]any{"status": status}}, nil)
	r.drain()
}

func (r *testRig) offer(sdp string) {
	r.gw.EmitPlugin(map[string]any{"streaming": "event", "result": map[string]any{"status": "preparing"}},
		&janus.JSEP{Type: "offer", SDP: sdp})
	r.drain()
}

// play は開始から再生中までを進める
func (r *testRig) play(t *testing.T) {
	t.Helper()
	r.do(startRequested{})
	r.offer(stereoOffer)
	r.status("starting")
	r.status("started")
	if r.c.state != StatePlaying {
		t.Fatalf("再生中になっていません: %s", r.c.state)
	}
}

func count(list []string, want string) int {
	n := 0
	for _, s := range list {
		if s == want {
			n++
		}
	}
	return n
}

func TestStartSequence(t *testing.T) {
	rig := newRig(t, "314")
	rig.do(startRequested{})

	want := []State{StateAttaching, StateAttached, StateListing, StateWatching}
	if !reflect.DeepEqual(rig.view.States, want) {
		t.Errorf("状態遷移が一致しません: got %v, want %v", rig.view.States, want)
	}
	if got := rig.gw.Requests(); !reflect.DeepEqual(got, []string{"list", "watch", "info"}) {
		t.Errorf("送信された要求が一致しません: %v", got)
	}

	sent := rig.gw.Sent()
	if id, ok := sent[1].Body["id"].(uint64); !ok || id != 314 {
		t.Errorf("watch のIDは数値のはずです: %#v", sent[1].Body["id"])
	}
	if len(rig.view.Streams) != 2 || rig.view.Streams[1].ID != "1234567" {
		t.Errorf("ストリーム一覧が一致しません: %+v", rig.view.Streams)
	}
	if rig.view.Info == nil || rig.view.Info.Metadata != "imx219 on pi4" {
		t.Errorf("メタデータが届いていません: %+v", rig.view.Info)
	}
	if rig.view.Params.Model() != "imx219" {
		t.Errorf("初期パラメータが表示されていません: %v", rig.view.Params)
	}
	if !reflect.DeepEqual(rig.view.Selections, []string{"314"}) {
		t.Errorf("視聴先が通知されていません: %v", rig.view.Selections)
	}
}

func TestStartIsOneShot(t *testing.T) {
	rig := newRig(t, "314")
	rig.do(startRequested{})
	rig.do(startRequested{})

	if got := count(rig.gw.Requests(), "watch"); got != 1 {
		t.Errorf("watch は1回だけ送信されるはずです: %d", got)
	}
}

func TestStartUnsupported(t *testing.T) {
	rig := newRig(t, "314")
	rig.peers.SupportErr = errors.New("no codecs")
	rig.do(startRequested{})

	if rig.c.state != StateError {
		t.Errorf("error 状態のはずです: %s", rig.c.state)
	}
	if rig.c.session != nil || len(rig.gw.Sent()) != 0 {
		t.Error("セッションは作成されないはずです")
	}
	n, ok := rig.view.LastNotice()
	if !ok || n.Kind != NoticeCapability || !n.Fatal || !errors.Is(n, ErrUnsupported) {
		t.Errorf("capability 通知が期待されました: %+v", n)
	}
}

func TestAttachFailure(t *testing.T) {
	testCases := []struct {
		name string
		op   string
	}{
		{"セッション作成の失敗", "create"},
		{"アタッチの失敗", "attach"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rig := newRig(t, "314")
			rig.gw.SetFailure(tc.op, errors.New("gateway down"))
			rig.do(startRequested{})

			if rig.c.state != StateError {
				t.Errorf("error 状態のはずです: %s", rig.c.state)
			}
			n, _ := rig.view.LastNotice()
			if n.Kind != NoticeAttach || !n.Fatal || !errors.Is(n, ErrReloadRequired) {
				t.Errorf("attach 通知が期待されました: %+v", n)
			}
		})
	}
}

func TestWatchWithoutSelection(t *testing.T) {
	rig := newRig(t, "")
	rig.do(startRequested{})

	if got := count(rig.gw.Requests(), "watch"); got != 0 {
		t.Errorf("選択がない場合 watch は送信されないはずです: %v", rig.gw.Requests())
	}
	if rig.c.state == StateWatching {
		t.Error("watching に遷移しないはずです")
	}
	n, _ := rig.view.LastNotice()
	if n.Kind != NoticeValidation || !errors.Is(n, ErrNoSelection) {
		t.Errorf("validation 通知が期待されました: %+v", n)
	}

	// 明示的に選択すれば送信される
	rig.do(watchRequested{id: "main"})
	sent := rig.gw.Sent()
	last := sent[len(sent)-2]
	if last.Request() != "watch" || last.Body["id"] != "main" {
		t.Errorf("文字列IDの watch が期待されました: %+v", last)
	}
}

func TestWatchWhileBusy(t *testing.T) {
	testCases := []struct {
		name    string
		advance func(t *testing.T, rig *testRig)
	}{
		{"ネゴシエーション中", func(_ *testing.T, rig *testRig) {
			rig.do(startRequested{})
			rig.offer(stereoOffer)
		}},
		{"再生中", func(t *testing.T, rig *testRig) { rig.play(t) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rig := newRig(t, "314")
			tc.advance(t, rig)
			state := rig.c.state

			rig.do(watchRequested{id: "999"})

			if rig.c.state != state || rig.c.selection != "314" {
				t.Errorf("状態と選択は変わらないはずです: %s %s", rig.c.state, rig.c.selection)
			}
			if !reflect.DeepEqual(rig.view.Selections, []string{"314"}) {
				t.Errorf("拒否した視聴先を通知してはいけません: %v", rig.view.Selections)
			}
			if got := count(rig.gw.Requests(), "watch"); got != 1 {
				t.Errorf("watch は1回だけ送信されるはずです: %d", got)
			}
			n, _ := rig.view.LastNotice()
			if n.Kind != NoticeValidation || !errors.Is(n, ErrBusy) {
				t.Errorf("validation 通知が期待されました: %+v", n)
			}
		})
	}
}

func TestListFailure(t *testing.T) {
	rig := newRig(t, "314")
	rig.gw.SetResponse("list", map[string]any{"streaming": "list"})
	rig.do(startRequested{})

	var found bool
	for _, n := range rig.view.Notices {
		if n.Kind == NoticeQuery && errors.Is(n, ErrEmptyList) && !n.Fatal {
			found = true
		}
	}
	if !found {
		t.Errorf("query 通知が期待されました: %+v", rig.view.Notices)
	}
	if rig.c.state != StateWatching || rig.c.selection != "314" {
		t.Errorf("一覧の失敗で選択や状態は変わらないはずです: %s %s", rig.c.state, rig.c.selection)
	}
}

func TestOfferAnswer(t *testing.T) {
	rig := newRig(t, "314")
	rig.do(startRequested{})
	rig.offer(stereoOffer)

	if rig.c.state != StateNegotiating {
		t.Fatalf("negotiating のはずです: %s", rig.c.state)
	}
	sent := rig.gw.Sent()
	start := sent[len(sent)-1]
	if start.Request() != "start" || start.JSEP == nil || start.JSEP.Type != "answer" {
		t.Fatalf("start とアンサーが期待されました: %+v", start)
	}
	if !strings.Contains(start.JSEP.SDP, "useinbandfec=1;stereo=1") {
		t.Errorf("アンサーに stereo=1 が付いていません:\n%s", start.JSEP.SDP)
	}
	conns := rig.peers.Connections()
	if len(conns) != 1 || conns[0].Offers()[0] != stereoOffer {
		t.Errorf("オファーが接続に渡されていません")
	}
}

func TestUnexpectedOffer(t *testing.T) {
	rig := newRig(t, "314")
	rig.play(t)
	before := len(rig.gw.Sent())

	rig.offer(stereoOffer)

	if rig.c.state != StatePlaying {
		t.Errorf("状態は変わらないはずです: %s", rig.c.state)
	}
	if len(rig.gw.Sent()) != before || len(rig.peers.Connections()) != 1 {
		t.Error("予期しないオファーに応答してはいけません")
	}
	n, _ := rig.view.LastNotice()
	if n.Kind != NoticeProtocol || !errors.Is(n, ErrUnexpectedOffer) {
		t.Errorf("protocol 通知が期待されました: %+v", n)
	}
}

func TestAnswerFailure(t *testing.T) {
	rig := newRig(t, "314")
	rig.peers.AnswerErr = errors.New("ice failed")
	rig.do(startRequested{})
	rig.offer(stereoOffer)

	if rig.c.state != StateError {
		t.Errorf("error 状態のはずです: %s", rig.c.state)
	}
	if count(rig.gw.Requests(), "start") != 0 {
		t.Error("start は送信されないはずです")
	}
	n, _ := rig.view.LastNotice()
	if !n.Fatal || !errors.Is(n, ErrReloadRequired) {
		t.Errorf("再読み込みの通知が期待されました: %+v", n)
	}
}

func TestStatusSequences(t *testing.T) {
	testCases := []struct {
		name      string
		statuses  []string
		wantState State
		wantStops int
	}{
		{"starting のみ", []string{"starting"}, StateNegotiating, 0},
		{"started", []string{"starting", "started"}, StatePlaying, 0},
		{"started 後の starting", []string{"started", "starting"}, StatePlaying, 0},
		{"stopped", []string{"started", "stopped"}, StateStopped, 1},
		{"stopped の重複", []string{"started", "stopped", "stopped"}, StateStopped, 1},
		{"再開後の stopped", []string{"started", "stopped", "started", "stopped"}, StateStopped, 2},
		{"stopped 後の starting", []string{"started", "stopped", "starting"}, StateStopped, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rig := newRig(t, "314")
			rig.do(startRequested{})
			rig.offer(stereoOffer)
			for _, s := range tc.statuses {
				rig.status(s)
			}

			if rig.c.state != tc.wantState {
				t.Errorf("状態: got %s, want %s", rig.c.state, tc.wantState)
			}
			if got := count(rig.gw.Requests(), "stop"); got != tc.wantStops {
				t.Errorf("stop の回数: got %d, want %d", got, tc.wantStops)
			}
		})
	}
}

func TestDoubleStop(t *testing.T) {
	rig := newRig(t, "314")
	rig.play(t)

	rig.do(stopRequested{})
	rig.do(stopRequested{})

	if got := count(rig.gw.Requests(), "stop"); got != 1 {
		t.Errorf("stop は1回だけ送信されるはずです: %d", got)
	}
	if rig.c.state != StateStopped {
		t.Errorf("stopped のはずです: %s", rig.c.state)
	}
	hangups, _, _ := rig.gw.Counts()
	if hangups != 1 {
		t.Errorf("ハングアップは1回のはずです: %d", hangups)
	}
	if rig.peers.Connections()[0].Closes() != 1 {
		t.Errorf("接続は閉じられるはずです")
	}
}

func TestPluginError(t *testing.T) {
	rig := newRig(t, "314")
	rig.play(t)

	rig.gw.EmitPlugin(map[string]any{"streaming": "event", "error_code": 455, "error": "No such mountpoint"}, nil)
	rig.drain()

	if count(rig.gw.Requests(), "stop") != 1 {
		t.Errorf("エラー時は stop が送信されるはずです: %v", rig.gw.Requests())
	}
	if rig.c.state != StateError {
		t.Errorf("error 状態のはずです: %s", rig.c.state)
	}
	n, _ := rig.view.LastNotice()
	if n.Kind != NoticeSignaling || !n.Fatal || !strings.Contains(n.Error(), "No such mountpoint") {
		t.Errorf("signaling 通知が期待されました: %+v", n)
	}
}

func TestCleanup(t *testing.T) {
	rig := newRig(t, "314")
	rig.play(t)
	conn := rig.c.conn
	rig.do(remoteTrack{conn: conn, kind: "video", codec: "video/VP8"})
	if rig.c.stopSampling == nil {
		t.Fatal("ビットレートの計測が始まっていません")
	}

	rig.do(stopRequested{})
	rig.gw.Emit(&janus.Message{Janus: janus.TypeHangup, Reason: "Close PC"})
	rig.drain()

	if rig.c.state != StateIdle {
		t.Errorf("後片付けの後は idle のはずです: %s", rig.c.state)
	}
	if rig.c.conn != nil || rig.c.stopSampling != nil {
		t.Error("メディアが解放されていません")
	}

	// 後片付けの後に届いた stopped は何もしない
	rig.status("stopped")
	if count(rig.gw.Requests(), "stop") != 1 || rig.c.state != StateIdle {
		t.Errorf("stopped は無視されるはずです: %v %s", rig.gw.Requests(), rig.c.state)
	}

	// 再度視聴できる
	rig.do(watchRequested{id: "314"})
	if rig.c.state != StateWatching {
		t.Errorf("watching のはずです: %s", rig.c.state)
	}
}

func TestCleanupKeepsError(t *testing.T) {
	rig := newRig(t, "314")
	rig.play(t)
	rig.do(iceState{conn: rig.c.conn, state: "disconnected"})
	if rig.c.state != StateError {
		t.Fatalf("ICE 切断で error 状態のはずです: %s", rig.c.state)
	}

	rig.gw.Emit(&janus.Message{Janus: janus.TypeHangup})
	rig.drain()
	if rig.c.state != StateError {
		t.Errorf("error 状態は維持されるはずです: %s", rig.c.state)
	}
	rig.do(watchRequested{id: "314"})
	if count(rig.gw.Requests(), "watch") != 1 {
		t.Error("error 状態では視聴できないはずです")
	}
}

func TestSessionLost(t *testing.T) {
	rig := newRig(t, "314")
	rig.play(t)

	rig.gw.EmitSession(&janus.Message{Janus: janus.TypeTimeout})
	rig.drain()

	if rig.c.state != StateError {
		t.Errorf("error 状態のはずです: %s", rig.c.state)
	}
	n, _ := rig.view.LastNotice()
	if n.Kind != NoticeTransport || !errors.Is(n, ErrReloadRequired) {
		t.Errorf("transport 通知が期待されました: %+v", n)
	}
}

func TestRemoteTrackSyncsTime(t *testing.T) {
	rig := newRig(t, "314")
	rig.c.now = func() time.Time { return time.Unix(1700000000, 0) }
	rig.play(t)

	conn := rig.c.conn
	rig.do(remoteTrack{conn: conn, kind: "video", codec: "video/VP8"})
	rig.do(remoteTrack{conn: conn, kind: "audio", codec: "audio/opus"})

	if got := count(rig.cam.Calls(), "time=1700000000"); got != 1 {
		t.Errorf("時刻合わせは最初のトラックで1回のはずです: %v", rig.cam.Calls())
	}

	rig.do(bitrateSample{bps: 2500000})
	if len(rig.view.Bitrates) != 1 || rig.view.Bitrates[0] != 2500000 {
		t.Errorf("ビットレートが表示されていません: %v", rig.view.Bitrates)
	}
}

func TestChangeParameterResolution(t *testing.T) {
	rig := newRig(t, "314")
	rig.do(refreshRequested{})
	before := rig.c.params.Clone()

	rig.do(changeRequested{name: "resolution", value: "1280x720"})

	if rig.c.params["width"] != "1280" || rig.c.params["height"] != "720" {
		t.Errorf("解像度が反映されていません: %v", rig.c.params)
	}
	changed := before.Diff(rig.c.params)
	if !reflect.DeepEqual(changed, []string{"height", "width"}) {
		t.Errorf("width と height 以外が変わっています: %v", changed)
	}
	last := rig.view.Changed[len(rig.view.Changed)-1]
	if !reflect.DeepEqual(last, []string{"height", "width"}) {
		t.Errorf("表示に渡された変更が一致しません: %v", last)
	}
}

func TestChangeParameterFailure(t *testing.T) {
	rig := newRig(t, "314")
	rig.do(refreshRequested{})
	before := rig.c.params.Clone()

	rig.cam.SetFailure(errors.New("connection refused"))
	rig.do(changeRequested{name: "framerate", value: "30"})

	if !reflect.DeepEqual(rig.c.params, before) {
		t.Errorf("失敗時はパラメータを変えないはずです: %v", rig.c.params)
	}
	n, _ := rig.view.LastNotice()
	if n.Kind != NoticeControl || n.Fatal {
		t.Errorf("回復可能な control 通知が期待されました: %+v", n)
	}

	rig.do(changeRequested{name: "warp", value: "9"})
	n, _ = rig.view.LastNotice()
	if n.Kind != NoticeValidation || !errors.Is(n, camera.ErrUnknownParameter) {
		t.Errorf("validation 通知が期待されました: %+v", n)
	}
}

func TestToggle(t *testing.T) {
	rig := newRig(t, "314")
	rig.do(refreshRequested{})

	rig.do(toggleRequested{name: "hflip"})
	rig.do(toggleRequested{name: "stats"})
	rig.do(toggleRequested{name: "stats"})

	if rig.c.params["hflip"] != "1" {
		t.Errorf("hflip: got %q", rig.c.params["hflip"])
	}
	if rig.c.params["stats"] != camera.StatsOff {
		t.Errorf("stats: got %q", rig.c.params["stats"])
	}
	calls := rig.cam.Calls()
	want := []string{"", "hflip=1", "stats=" + camera.StatsOn, "stats=" + camera.StatsOff}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("要求が一致しません: got %v, want %v", calls, want)
	}
}

func TestZoom(t *testing.T) {
	rig := newRig(t, "314")
	rig.do(refreshRequested{})

	rig.do(zoomRequested{delta: -1})
	if rig.c.params["sensor_mode"] != "0" {
		t.Errorf("最小からは縮小しないはずです: %s", rig.c.params["sensor_mode"])
	}
	for i := 0; i < 6; i++ {
		rig.do(zoomRequested{delta: 1})
	}
	if rig.c.params["sensor_mode"] != "7" {
		t.Errorf("最大ズームは7のはずです: %s", rig.c.params["sensor_mode"])
	}
	want := []string{"", "sensor_mode=5", "sensor_mode=6", "sensor_mode=1", "sensor_mode=7"}
	if !reflect.DeepEqual(rig.cam.Calls(), want) {
		t.Errorf("要求が一致しません: got %v, want %v", rig.cam.Calls(), want)
	}
}

func TestSlowLink(t *testing.T) {
	rig := newRig(t, "314")
	rig.do(startRequested{})

	rig.gw.Emit(&janus.Message{Janus: janus.TypeSlowLink, Uplink: false, Lost: 200})
	rig.drain()
	if rig.c.params["bitrate"] != "4000000" {
		t.Errorf("損失が少なければ変更しないはずです: %s", rig.c.params["bitrate"])
	}

	rig.gw.Emit(&janus.Message{Janus: janus.TypeSlowLink, Uplink: false, Lost: 800, NACKs: 40})
	rig.drain()
	if rig.c.params["bitrate"] != "3000000" {
		t.Errorf("ビットレートが下がっていません: %s", rig.c.params["bitrate"])
	}
}

func TestMedia(t *testing.T) {
	rig := newRig(t, "314")
	rig.cam.SetMedia(&camera.MediaListing{FreeGiB: 10, Files: []camera.MediaFile{
		{Name: "a.mkv", Size: "1 MiB"}, {Name: "b.mkv", Size: "2 MiB"},
	}})
	rig.do(refreshRequested{})
	rig.do(changeRequested{name: "record", value: "1"})

	rig.do(mediaRequested{op: mediaList})
	if rig.c.params["record"] != "0" {
		t.Errorf("一覧の前に録画を止めるはずです: %s", rig.c.params["record"])
	}
	if rig.view.Media == nil || len(rig.view.Media.Files) != 2 {
		t.Fatalf("一覧が表示されていません: %+v", rig.view.Media)
	}

	rig.do(mediaRequested{op: mediaRemove, file: "a.mkv"})
	if rig.view.Media.Has("a.mkv") || !rig.view.Media.Has("b.mkv") {
		t.Errorf("a.mkv だけが削除されるはずです: %+v", rig.view.Media)
	}

	rig.do(mediaRequested{op: mediaClear})
	if len(rig.view.Media.Files) != 0 {
		t.Errorf("全て削除されるはずです: %+v", rig.view.Media)
	}

	rig.do(mediaRequested{op: mediaRemove, file: "missing.mkv"})
	n, _ := rig.view.LastNotice()
	if n.Kind != NoticeControl {
		t.Errorf("control 通知が期待されました: %+v", n)
	}
}

func TestRestart(t *testing.T) {
	rig := newRig(t, "314")
	rig.do(restartRequested{})

	calls := rig.cam.Calls()
	if len(calls) != 1 || calls[0] != "restart" {
		t.Errorf("restart が送信されていません: %v", calls)
	}
}

func TestTeardown(t *testing.T) {
	rig := newRig(t, "314")
	rig.play(t)

	if err := rig.c.teardown(); err != nil {
		t.Fatalf("破棄に失敗: %v", err)
	}
	_, detaches, destroys := rig.gw.Counts()
	if detaches != 1 || destroys != 1 {
		t.Errorf("デタッチと破棄は1回ずつのはずです: %d %d", detaches, destroys)
	}
}
