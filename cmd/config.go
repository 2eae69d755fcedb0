package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "読み込んだ設定を表示する",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cfg)
		}
		out, err := cfg.YAML()
		if err != nil {
			return fmt.Errorf("設定の出力に失敗: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
