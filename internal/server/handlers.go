package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"

	"campanel/internal/camera"
	"campanel/internal/stream"
)

// ErrorResponse はAPIエラーの共通形式
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AcceptedResponse は非同期に処理する要求の応答
type AcceptedResponse struct {
	Status    string `json:"status"`
	Operation string `json:"operation"`
}

// ParametersResponse はパラメータ取得の応答
type ParametersResponse struct {
	Parameters camera.Parameters `json:"parameters"`
	Model      string            `json:"model"`
	Resolution string            `json:"resolution"`
}

// ModesResponse はセンサーモードの選択肢
type ModesResponse struct {
	Model         string                `json:"model"`
	Mode          int                   `json:"mode"`
	Resolution    string                `json:"resolution,omitempty"`
	Options       camera.ModeOptions    `json:"options"`
	Labels        []string              `json:"labels"`
	ShutterSpeeds []camera.ShutterSpeed `json:"shutter_speeds"`
	Capabilities  camera.Capabilities   `json:"capabilities"`
	Presets       []camera.Preset       `json:"presets"`
}

// WatchRequest は視聴要求の本文
type WatchRequest struct {
	ID string `json:"id" binding:"required"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// withController はコントローラが動いている場合だけ fn を呼び、202 を返す
func (s *Server) withController(c *gin.Context, operation string, fn func(Controller)) {
	ctrl := s.controller()
	if ctrl == nil {
		abortWithError(c, http.StatusServiceUnavailable, "controller_unavailable", "ストリームコントローラが起動していません")
		return
	}
	fn(ctrl)
	c.JSON(http.StatusAccepted, AcceptedResponse{Status: "accepted", Operation: operation})
}

// pathName はパスパラメータ name を取り出す
func pathName(c *gin.Context) (string, bool) {
	var name string
	if err := runtime.BindStyledParameterWithLocation("simple", false, "name", runtime.ParamLocationPath, c.Param("name"), &name); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return "", false
	}
	return name, true
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// handleStatus はストリームの状態を返す
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.view.Status())
}

func (s *Server) handleOpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml", openapiSpec)
}

// handleRoot は操作パネルを返す
func (s *Server) handleRoot(c *gin.Context) {
	data, err := indexHTML()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}

func (s *Server) handleGetParameters(c *gin.Context) {
	params := s.view.Parameters()
	c.JSON(http.StatusOK, ParametersResponse{
		Parameters: params,
		Model:      params.Model(),
		Resolution: params.Resolution(),
	})
}

// handleChangeParameter は PUT /api/parameters/:name?value=
func (s *Server) handleChangeParameter(c *gin.Context) {
	name, ok := pathName(c)
	if !ok {
		return
	}
	var value string
	if err := runtime.BindQueryParameter("form", true, true, "value", c.Request.URL.Query(), &value); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}

	// 操作はそれぞれ専用のエンドポイントから行う
	if camera.IsAction(name) {
		abortWithError(c, http.StatusBadRequest, "unknown_parameter", name+" は操作です")
		return
	}
	if _, err := camera.Query(name, value); err != nil {
		abortWithError(c, http.StatusBadRequest, "unknown_parameter", err.Error())
		return
	}

	s.withController(c, "change", func(ctrl Controller) { ctrl.ChangeParameter(name, value) })
}

func (s *Server) handleToggle(c *gin.Context) {
	name, ok := pathName(c)
	if !ok {
		return
	}
	if _, err := camera.ToggleNext(name, ""); err != nil {
		abortWithError(c, http.StatusBadRequest, "not_toggle", err.Error())
		return
	}
	s.withController(c, "toggle", func(ctrl Controller) { ctrl.Toggle(name) })
}

func (s *Server) handleZoom(c *gin.Context) {
	var direction string
	if err := runtime.BindStyledParameterWithLocation("simple", false, "direction", runtime.ParamLocationPath, c.Param("direction"), &direction); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}

	switch direction {
	case "in":
		s.withController(c, "zoom", func(ctrl Controller) { ctrl.ZoomIn() })
	case "out":
		s.withController(c, "zoom", func(ctrl Controller) { ctrl.ZoomOut() })
	default:
		abortWithError(c, http.StatusBadRequest, "invalid_parameter", "direction は in か out です")
	}
}

// handleModes はセンサーモードで選べる値を返す
// 指定がなければ最後に確認されたパラメータのモデル・モード・解像度を使う
func (s *Server) handleModes(c *gin.Context) {
	params := s.view.Parameters()
	query := c.Request.URL.Query()

	// 任意のクエリはポインタで受け取る
	var (
		modelQ      *string
		modeQ       *int
		resolutionQ *string
	)
	for name, dest := range map[string]any{"model": &modelQ, "mode": &modeQ, "resolution": &resolutionQ} {
		if err := runtime.BindQueryParameter("form", true, false, name, query, dest); err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid_parameter", err.Error())
			return
		}
	}

	model := params.Model()
	if modelQ != nil {
		model = *modelQ
	}
	resolution := params.Resolution()
	if resolutionQ != nil {
		resolution = *resolutionQ
	}
	mode, hasMode := params.Int("sensor_mode")
	if modeQ != nil {
		mode, hasMode = *modeQ, true
	}
	if model == "" || !hasMode {
		abortWithError(c, http.StatusNotFound, "unknown_mode", "カメラのモデルとセンサーモードが未確認です")
		return
	}

	options, err := camera.Lookup(model, mode, resolution)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, camera.ErrUnknownModel) || errors.Is(err, camera.ErrUnknownMode) {
			status = http.StatusNotFound
		}
		abortWithError(c, status, "unknown_mode", err.Error())
		return
	}

	c.JSON(http.StatusOK, ModesResponse{
		Model:         model,
		Mode:          mode,
		Resolution:    resolution,
		Options:       options,
		Labels:        camera.SensorModeLabels(model),
		ShutterSpeeds: camera.ShutterSpeeds(model),
		Capabilities:  camera.CapabilitiesOf(model),
		Presets:       camera.ResolutionPresets,
	})
}

func (s *Server) handleGetStreams(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"streams": s.view.Streams()})
}

func (s *Server) handleRefreshStreams(c *gin.Context) {
	s.withController(c, "list", func(ctrl Controller) { ctrl.ListStreams() })
}

func (s *Server) handleWatch(c *gin.Context) {
	var req WatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", stream.ErrNoSelection.Error())
		return
	}
	s.withController(c, "watch", func(ctrl Controller) { ctrl.Watch(req.ID) })
}

func (s *Server) handleStop(c *gin.Context) {
	s.withController(c, "stop", func(ctrl Controller) { ctrl.Stop() })
}

// handleReload はコントローラの作り直しを要求する
func (s *Server) handleReload(c *gin.Context) {
	select {
	case s.reloads <- struct{}{}:
	default:
		// 既に要求済み
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{Status: "accepted", Operation: "reload"})
}

func (s *Server) handleGetMedia(c *gin.Context) {
	media := s.view.Media()
	if media == nil {
		abortWithError(c, http.StatusNotFound, "media_unknown", "録画フォルダは未取得です")
		return
	}
	c.JSON(http.StatusOK, media)
}

func (s *Server) handleRefreshMedia(c *gin.Context) {
	s.withController(c, "media", func(ctrl Controller) { ctrl.ListMedia() })
}

func (s *Server) handleClearMedia(c *gin.Context) {
	s.withController(c, "remove", func(ctrl Controller) { ctrl.ClearMedia() })
}

func (s *Server) handleRemoveMedia(c *gin.Context) {
	var file string
	if err := runtime.BindStyledParameterWithLocation("simple", false, "file", runtime.ParamLocationPath, c.Param("file"), &file); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	s.withController(c, "remove", func(ctrl Controller) { ctrl.RemoveMedia(file) })
}

func (s *Server) handleRestart(c *gin.Context) {
	s.withController(c, "restart", func(ctrl Controller) { ctrl.RestartCamera() })
}

// handleEvents はサーバー送信イベントで更新を配信する
// 接続直後に現在の状態を1件送る
func (s *Server) handleEvents(c *gin.Context) {
	id, updates := s.view.Subscribe()
	defer s.view.Unsubscribe(id)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(EventState, s.view.Status().State)
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case u, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent(u.Event, u.Data)
			return true
		}
	})
}
