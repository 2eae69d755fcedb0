package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"campanel/internal/janus"
	"campanel/internal/stream"
)

var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "ゲートウェイのマウントポイントを一覧する",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, factory, err := loadConfig()
		if err != nil {
			return err
		}

		client, err := janus.NewClient(janus.ClientConfig{
			URL:           cfg.Janus.URL,
			Keepalive:     cfg.Janus.Keepalive,
			Timeout:       cfg.Janus.Timeout,
			LoggerFactory: factory,
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 3*cfg.Janus.Timeout)
		defer cancel()

		streams, err := listStreams(ctx, client, cfg.Janus.Plugin)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(streams)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tDESCRIPTION")
		fmt.Fprintln(w, "--\t----\t-----------")
		for _, s := range streams {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Type, s.Description)
		}
		return w.Flush()
	},
}

// listStreams はセッションを1つ作って list を送り、後始末して結果を返す
func listStreams(ctx context.Context, client *janus.Client, plugin string) (streams []stream.StreamInfo, err error) {
	if _, err := client.Info(ctx); err != nil {
		return nil, fmt.Errorf("ゲートウェイに接続できません: %w", err)
	}

	session, err := client.Create(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, session.Destroy(ctx)) }()

	handle, err := session.Attach(ctx, plugin, nil)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, handle.Detach(ctx)) }()

	resp, err := handle.Message(ctx, map[string]any{"request": "list"}, nil)
	if err != nil {
		return nil, err
	}
	return stream.ParseStreamList(resp)
}

func init() {
	rootCmd.AddCommand(streamsCmd)
}
