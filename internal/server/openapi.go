package server

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"
	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openapiSpec []byte

// loadRouter は埋め込みのAPI定義を読み込み、検証済みのルーターを返す
func loadRouter() (routers.Router, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("API定義の読み込みに失敗: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("API定義が不正です: %w", err)
	}
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("ルーターの作成に失敗: %w", err)
	}
	return router, nil
}

// validateRequest はAPI定義に沿わない要求をハンドラに届く前に 400 で返す
// 定義にないパスはそのまま通す
func validateRequest(router routers.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			if errors.Is(err, routers.ErrMethodNotAllowed) {
				abortWithError(c, http.StatusMethodNotAllowed, "method_not_allowed", err.Error())
				return
			}
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		c.Next()
	}
}
