package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	pionlogging "github.com/pion/logging"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"campanel/internal/camera"
	"campanel/internal/config"
	"campanel/internal/janus"
	"campanel/internal/logging"
	"campanel/internal/peer"
	"campanel/internal/server"
	"campanel/internal/stream"
)

var (
	watchStream    string
	watchRecordDir string
	watchHost      string
	watchPort      int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "ストリームを受信し、操作パネルを起動する",
	Long: `ゲートウェイのマウントポイントを受信専用で視聴し、
操作パネルを http://<host>:<port>/ で公開します。
SIGINT または SIGTERM で終了します。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, factory, err := loadConfig()
		if err != nil {
			return err
		}

		// コマンドラインオプションで設定を上書き
		flags := cmd.Flags()
		if flags.Changed("stream") {
			cfg.Janus.Stream = watchStream
		}
		if flags.Changed("record-dir") {
			cfg.Janus.RecordDir = watchRecordDir
		}
		if flags.Changed("host") {
			cfg.Server.Host = watchHost
		}
		if flags.Changed("port") {
			cfg.Server.Port = watchPort
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("設定の検証に失敗: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx, cfg, factory)
	},
}

// watchStack はコントローラを作り直すときに使う部品
type watchStack struct {
	cfg       *config.Config
	signaling stream.Connector
	peers     stream.PeerFactory
	camera    camera.Control
	factory   pionlogging.LoggerFactory
}

// runWatch は ctx が終わるまでコントローラとパネルを動かす
func runWatch(ctx context.Context, cfg *config.Config, factory pionlogging.LoggerFactory) error {
	signaling, err := janus.NewClient(janus.ClientConfig{
		URL:           cfg.Janus.URL,
		Keepalive:     cfg.Janus.Keepalive,
		Timeout:       cfg.Janus.Timeout,
		LoggerFactory: factory,
	})
	if err != nil {
		return err
	}
	peers := peer.NewFactory(peer.Config{
		ICEServers:    cfg.Janus.ICE,
		RecordDir:     cfg.Janus.RecordDir,
		LoggerFactory: factory,
	})

	view := server.NewView(cfg.Janus.Stream)
	srv, err := server.New(cfg, view, factory)
	if err != nil {
		return err
	}

	return superviseWatch(ctx, watchStack{
		cfg:       cfg,
		signaling: signaling,
		peers:     peers,
		camera:    newCameraClient(cfg, factory),
		factory:   factory,
	}, srv, view)
}

// superviseWatch はパネルを起動し、コントローラを動かし続ける
// パネルから再読み込みを要求されると古いコントローラを破棄し、
// 最後に受け付けた視聴先で作り直す
func superviseWatch(ctx context.Context, st watchStack, srv *server.Server, view *server.View) error {
	log := st.factory.NewLogger(logging.ScopeCLI)

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Start(ctx) }()

	for {
		ctrl := stream.NewController(stream.Config{
			Plugin:         st.cfg.Janus.Plugin,
			Stream:         view.Status().Selection,
			RequestTimeout: st.cfg.Janus.Timeout,
			LoggerFactory:  st.factory,
		}, st.signaling, st.peers, st.camera, view)
		srv.SetController(ctrl)

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- ctrl.Run(runCtx) }()
		ctrl.Start()

		select {
		case <-srv.Reloads():
			log.Info("コントローラを作り直します")
			srv.SetController(nil)
			cancel()
			if err := <-done; err != nil {
				log.Warnf("セッションの破棄に失敗: %v", err)
			}
		case err := <-srvErr:
			cancel()
			return multierr.Append(err, <-done)
		case <-ctx.Done():
			cancel()
			teardownErr := <-done
			return multierr.Append(<-srvErr, teardownErr)
		}
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchStream, "stream", "", "視聴するマウントポイントID")
	watchCmd.Flags().StringVar(&watchRecordDir, "record-dir", "", "受信したメディアを保存するディレクトリ")
	watchCmd.Flags().StringVar(&watchHost, "host", "", "操作パネルのホスト")
	watchCmd.Flags().IntVar(&watchPort, "port", 0, "操作パネルのポート")
}
