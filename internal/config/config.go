package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"campanel/internal/logging"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Janus  JanusConfig  `yaml:"janus" mapstructure:"janus"`
	Camera CameraConfig `yaml:"camera" mapstructure:"camera"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// ServerConfig はコントロールパネル用HTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"` // リッスンするホスト
	Port int    `yaml:"port" mapstructure:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`   // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"` // 書き込みタイムアウト
}

// JanusConfig はシグナリングサーバー(Janus)の設定
type JanusConfig struct {
	// http(s):// ならロングポーリング、ws(s):// ならWebSocketで接続する
	URL       string        `yaml:"url" mapstructure:"url"`
	Plugin    string        `yaml:"plugin" mapstructure:"plugin"`
	Stream    string        `yaml:"stream" mapstructure:"stream"`         // 既定のマウントポイントID
	Keepalive time.Duration `yaml:"keepalive" mapstructure:"keepalive"`   // セッション維持の間隔
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`       // リクエストタイムアウト
	ICE       []string      `yaml:"ice_servers" mapstructure:"ice_servers"` // STUN/TURN サーバー
	RecordDir string        `yaml:"record_dir" mapstructure:"record_dir"` // 受信メディアの保存先（空なら保存しない）
}

// CameraConfig はカメラ制御エンドポイントの設定
type CameraConfig struct {
	URL      string        `yaml:"url" mapstructure:"url"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Insecure bool          `yaml:"insecure" mapstructure:"insecure"` // 自己署名証明書を許可する
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string            `yaml:"level" mapstructure:"level"`
	Scopes map[string]string `yaml:"scopes" mapstructure:"scopes"`
}

// defaults は組み込みの既定値
var defaults = map[string]any{
	"server.host":          "0.0.0.0",
	"server.port":          8080,
	"server.read_timeout":  10 * time.Second,
	"server.write_timeout": 0, // イベントストリーム用にタイムアウト無効化
	"janus.url":            "http://localhost:8088/janus",
	"janus.plugin":         "janus.plugin.streaming",
	"janus.stream":         "314",
	"janus.keepalive":      25 * time.Second,
	"janus.timeout":        10 * time.Second,
	"janus.ice_servers":    []string{},
	"janus.record_dir":     "",
	"camera.url":           "https://localhost:8888",
	"camera.timeout":       10 * time.Second,
	"camera.insecure":      true,
	"log.level":            "info",
	"log.scopes":           map[string]string{},
}

// Load は既定値・設定ファイル・環境変数の順に設定を読み込む
// path が空の場合はカレントディレクトリとホームディレクトリの campanel.yaml を探す
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("campanel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
			v.AddConfigPath(filepath.Join(home, ".config", "campanel"))
		}
	}

	// 環境変数 CAMPANEL_JANUS_URL などで上書きできる
	v.SetEnvPrefix("CAMPANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 互換のための環境変数
	_ = v.BindEnv("server.host", "CAMPANEL_SERVER_HOST", "SERVER_HOST")
	_ = v.BindEnv("server.port", "CAMPANEL_SERVER_PORT", "PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("設定の変換に失敗: %w", err)
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// シグナリング設定の検証
	if err := validateURL(c.Janus.URL, "http", "https", "ws", "wss"); err != nil {
		return fmt.Errorf("janus.url: %w", err)
	}
	if c.Janus.Plugin == "" {
		return errors.New("janus.plugin が設定されていません")
	}
	if c.Janus.Keepalive <= 0 || c.Janus.Timeout <= 0 {
		return errors.New("janus のタイムアウトは正の値である必要があります")
	}

	// カメラ制御設定の検証
	if err := validateURL(c.Camera.URL, "http", "https"); err != nil {
		return fmt.Errorf("camera.url: %w", err)
	}
	if c.Camera.Timeout <= 0 {
		return errors.New("camera.timeout は正の値である必要があります")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// YAML は現在の設定をYAMLとして返す
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// validateURL はURLの形式とスキームを検証する
func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return errors.New("URLが設定されていません")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("URLの解析に失敗: %w", err)
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme {
			if u.Host == "" {
				return fmt.Errorf("ホストがありません: %s", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("サポートされていないスキーム: %q", u.Scheme)
}
