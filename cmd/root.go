// Package cmd はコマンドラインインターフェースを提供します。
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	pionlogging "github.com/pion/logging"
	"github.com/spf13/cobra"

	"campanel/internal/camera"
	"campanel/internal/config"
	"campanel/internal/logging"
)

var (
	cfgFile    string
	jsonOutput bool
)

// rootCmd はサブコマンドなしで呼ばれたときのコマンド
var rootCmd = &cobra.Command{
	Use:   "campanel",
	Short: "カメラのプレビューと操作パネル",
	Long: `Janus のストリーミングプラグインからカメラ映像を受信し、
カメラ制御エンドポイントのパラメータを操作します。`,
	SilenceUsage: true,
}

// Execute はコマンドを実行する
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "設定ファイル (既定: ./campanel.yaml または $HOME/campanel.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "結果をJSONで出力する")
}

// loadConfig は設定とロガーファクトリを用意する
func loadConfig() (*config.Config, pionlogging.LoggerFactory, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	factory, err := logging.NewFactory(os.Stderr, cfg.Log.Level, cfg.Log.Scopes)
	if err != nil {
		return nil, nil, err
	}
	return cfg, factory, nil
}

// newCameraClient はカメラ制御クライアントを作成する
func newCameraClient(cfg *config.Config, factory pionlogging.LoggerFactory) *camera.Client {
	return camera.NewClient(camera.ClientConfig{
		BaseURL:       cfg.Camera.URL,
		Timeout:       cfg.Camera.Timeout,
		Insecure:      cfg.Camera.Insecure,
		LoggerFactory: factory,
	})
}

// printJSON は v を整形したJSONで標準出力に書く
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("JSONの出力に失敗: %w", err)
	}
	return nil
}
