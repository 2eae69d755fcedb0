package camera

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pion/logging"

	applog "campanel/internal/logging"
)

// ClientConfig はカメラ制御クライアントの設定
type ClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Insecure bool // 自己署名証明書を許可する

	LoggerFactory logging.LoggerFactory
}

// Client はカメラ制御エンドポイントのHTTPクライアント
type Client struct {
	http *resty.Client
	log  logging.LeveledLogger
}

// NewClient は新しい Client を作成する
func NewClient(cfg ClientConfig) *Client {
	factory := cfg.LoggerFactory
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}
	log := factory.NewLogger(applog.ScopeCamera)

	r := resty.New()
	r.SetBaseURL(cfg.BaseURL)
	r.SetHeader("Accept", "application/json")
	r.SetLogger(log)
	if cfg.Timeout > 0 {
		r.SetTimeout(cfg.Timeout)
	}
	if cfg.Insecure {
		// カメラは自己署名証明書で待ち受けていることが多い
		r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}

	return &Client{http: r, log: log}
}

// Display は現在のパラメータを取得する
func (c *Client) Display(ctx context.Context) (Parameters, error) {
	body, err := c.get(ctx, "")
	if err != nil {
		return nil, err
	}
	return ParseParameters(body)
}

// Change はパラメータを変更し、カメラが確認したパラメータを返す
func (c *Client) Change(ctx context.Context, name, value string) (Parameters, error) {
	if name == "media" || name == "remove" {
		return nil, fmt.Errorf("%s はフォルダ操作です", name)
	}
	query, err := Query(name, value)
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, query)
	if err != nil {
		return nil, err
	}
	return ParseParameters(body)
}

// Restart はカメラのパイプラインを再起動する
func (c *Client) Restart(ctx context.Context) (Parameters, error) {
	return c.Change(ctx, "restart", "")
}

// SyncTime はカメラの時計を合わせる
func (c *Client) SyncTime(ctx context.Context, t time.Time) (Parameters, error) {
	return c.Change(ctx, "time", strconv.FormatInt(t.Unix(), 10))
}

// Media は録画フォルダの一覧を取得する
func (c *Client) Media(ctx context.Context) (*MediaListing, error) {
	body, err := c.get(ctx, "media")
	if err != nil {
		return nil, err
	}
	return ParseMediaListing(body)
}

// Remove はファイルを削除する。name が空なら全て削除する
func (c *Client) Remove(ctx context.Context, name string) (*MediaListing, error) {
	query, err := Query("remove", name)
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, query)
	if err != nil {
		return nil, err
	}
	return ParseMediaListing(body)
}

// get は GET /?<query> を送信して応答本文を返す
// 操作名だけのクエリ（?restart）を崩さないよう、クエリは生のままURLに付ける
func (c *Client) get(ctx context.Context, query string) ([]byte, error) {
	path := "/"
	if query != "" {
		path += "?" + query
	}
	c.log.Debugf("カメラへ要求: %s", path)

	resp, err := c.http.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("カメラへの要求に失敗: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("カメラがエラーを返しました: %s: %s", resp.Status(), resp.String())
	}
	return resp.Body(), nil
}
