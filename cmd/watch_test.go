package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"campanel/internal/camera"
	"campanel/internal/config"
	"campanel/internal/janus"
	"campanel/internal/logging"
	"campanel/internal/peer"
	"campanel/internal/server"
	"campanel/internal/stream"
)

// waitFor は cond が真になるまで待つ
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("%s になりませんでした", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// watchIDs は送信された watch 要求のIDを返す
func watchIDs(gw *janus.MockGateway) []any {
	var ids []any
	for _, m := range gw.Sent() {
		if m.Request() == "watch" {
			ids = append(ids, m.Body["id"])
		}
	}
	return ids
}

func post(srv *server.Server, path, body string) int {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w.Code
}

// TestSuperviseWatchReload は再読み込みでセッションを作り直し、視聴先を引き継ぐことをテストする
func TestSuperviseWatchReload(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         0, // ランダムポートを使用
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Janus: config.JanusConfig{
			Plugin:  "janus.plugin.streaming",
			Timeout: time.Second,
		},
	}
	factory := logging.Discard()

	gw := janus.NewMockGateway()
	gw.SetResponse("list", map[string]any{
		"streaming": "list",
		"list": []map[string]any{
			{"id": 314, "description": "pi camera"},
			{"id": 1234567, "description": "big id"},
		},
	})
	gw.SetResponse("info", map[string]any{
		"streaming": "info",
		"info":      map[string]any{"id": 1234567, "description": "big id"},
	})

	view := server.NewView("314")
	srv, err := server.New(cfg, view, factory)
	if err != nil {
		t.Fatalf("サーバーの作成に失敗しました: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- superviseWatch(ctx, watchStack{
			cfg:       cfg,
			signaling: gw,
			peers:     peer.NewMockFactory(""),
			camera:    camera.NewMockClient(camera.Parameters{"model": "imx219"}),
			factory:   factory,
		}, srv, view)
	}()

	waitFor(t, "watching", func() bool { return view.Status().State == stream.StateWatching })
	if gw.Sessions() != 1 {
		t.Fatalf("セッションは1つのはずです: %d", gw.Sessions())
	}

	// 別のマウントポイントに切り替えてから作り直す
	if code := post(srv, "/api/stream/watch", `{"id":"1234567"}`); code != http.StatusAccepted {
		t.Fatalf("watch: got %d, want %d", code, http.StatusAccepted)
	}
	waitFor(t, "視聴先の切り替え", func() bool { return view.Status().Selection == "1234567" })

	if code := post(srv, "/api/reload", ""); code != http.StatusAccepted {
		t.Fatalf("reload: got %d, want %d", code, http.StatusAccepted)
	}
	waitFor(t, "作り直し後の watch", func() bool { return len(watchIDs(gw)) == 3 })

	want := []any{uint64(314), uint64(1234567), uint64(1234567)}
	if got := watchIDs(gw); !reflect.DeepEqual(got, want) {
		t.Errorf("watch のIDが一致しません: got %v, want %v", got, want)
	}
	if gw.Sessions() != 2 {
		t.Errorf("セッションは作り直されるはずです: %d", gw.Sessions())
	}
	if _, _, destroys := gw.Counts(); destroys != 1 {
		t.Errorf("古いセッションは破棄されるはずです: %d", destroys)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("終了時にエラー: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("終了しませんでした")
	}
	if _, _, destroys := gw.Counts(); destroys != 2 {
		t.Errorf("終了時にもセッションは破棄されるはずです: %d", destroys)
	}
}
