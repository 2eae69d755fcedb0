package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/logging"

	"campanel/internal/config"
	applog "campanel/internal/logging"
)

// Controller は操作パネルから呼び出すストリーム制御
// いずれも要求を積むだけで、結果は View に通知される
type Controller interface {
	Watch(id string)
	Stop()
	ListStreams()
	ChangeParameter(name, value string)
	Toggle(name string)
	ZoomIn()
	ZoomOut()
	ListMedia()
	RemoveMedia(file string)
	ClearMedia()
	RestartCamera()
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	httpServer *http.Server
	engine     *gin.Engine
	view       *View
	log        logging.LeveledLogger

	mu      sync.RWMutex
	ctrl    Controller
	reloads chan struct{}

	// イベントストリームの接続はシャットダウン時にこれで切る
	cancelBase context.CancelFunc
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, view *View, factory logging.LoggerFactory) (*Server, error) {
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}
	log := factory.NewLogger(applog.ScopeServer)

	router, err := loadRouter()
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log), validateRequest(router))

	baseCtx, cancelBase := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		engine:     engine,
		view:       view,
		log:        log,
		reloads:    make(chan struct{}, 1),
		cancelBase: cancelBase,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			BaseContext:  func(net.Listener) context.Context { return baseCtx },
		},
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/openapi.yaml", s.handleOpenAPI)
	api.GET("/events", s.handleEvents)

	// カメラパラメータ
	api.GET("/parameters", s.handleGetParameters)
	api.PUT("/parameters/:name", s.handleChangeParameter)
	api.POST("/parameters/:name/toggle", s.handleToggle)
	api.POST("/zoom/:direction", s.handleZoom)
	api.GET("/modes", s.handleModes)

	// ストリーム
	api.GET("/streams", s.handleGetStreams)
	api.POST("/streams/refresh", s.handleRefreshStreams)
	api.POST("/stream/watch", s.handleWatch)
	api.POST("/stream/stop", s.handleStop)
	api.POST("/reload", s.handleReload)

	// 録画フォルダ
	api.GET("/media", s.handleGetMedia)
	api.POST("/media/refresh", s.handleRefreshMedia)
	api.DELETE("/media", s.handleClearMedia)
	api.DELETE("/media/:file", s.handleRemoveMedia)
	api.POST("/camera/restart", s.handleRestart)

	// 操作パネル
	s.engine.GET("/", s.handleRoot)
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// SetController は操作対象のコントローラを差し替える
func (s *Server) SetController(ctrl Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl = ctrl
}

func (s *Server) controller() Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctrl
}

// Reloads は再読み込み要求を通知する
func (s *Server) Reloads() <-chan struct{} {
	return s.reloads
}

// Start はサーバーを起動し、ctx が終わるとシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.log.Infof("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("コンテキストがキャンセルされました")
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.log.Info("サーバーをシャットダウンしています...")
	s.cancelBase()

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.log.Info("サーバーが正常にシャットダウンされました")
	return nil
}

// requestLogger は処理した要求をログに残す
func requestLogger(log logging.LeveledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		line := fmt.Sprintf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		if status >= http.StatusInternalServerError {
			log.Warn(line)
			return
		}
		log.Debug(line)
	}
}
