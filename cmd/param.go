package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"campanel/internal/camera"
)

// Parent Command
var paramCmd = &cobra.Command{
	Use:   "param",
	Short: "カメラのパラメータを操作する",
}

var paramGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "現在のパラメータを表示する",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, factory, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Camera.Timeout)
		defer cancel()

		params, err := newCameraClient(cfg, factory).Display(ctx)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			value, ok := params.Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", camera.ErrUnknownParameter, args[0])
			}
			if jsonOutput {
				return printJSON(map[string]string{args[0]: value})
			}
			fmt.Println(value)
			return nil
		}
		return printParameters(params)
	},
}

var paramSetCmd = &cobra.Command{
	Use:     "set <name> <value>",
	Short:   "パラメータを変更する",
	Example: "  campanel param set resolution 1280x720\n  campanel param set framerate 30",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, value := args[0], args[1]
		if camera.IsAction(name) {
			return fmt.Errorf("%s は操作です。専用のコマンドを使ってください", name)
		}
		return changeParameter(cmd.Context(), func(ctx context.Context, cam *camera.Client) (camera.Parameters, error) {
			return cam.Change(ctx, name, value)
		})
	},
}

var paramToggleCmd = &cobra.Command{
	Use:   "toggle <name>",
	Short: "オン/オフ式のパラメータを切り替える",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		return changeParameter(cmd.Context(), func(ctx context.Context, cam *camera.Client) (camera.Parameters, error) {
			current, err := cam.Display(ctx)
			if err != nil {
				return nil, err
			}
			next, err := camera.ToggleNext(name, current[name])
			if err != nil {
				return nil, err
			}
			return cam.Change(ctx, name, next)
		})
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "カメラのパイプラインを再起動する",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeParameter(cmd.Context(), func(ctx context.Context, cam *camera.Client) (camera.Parameters, error) {
			return cam.Restart(ctx)
		})
	},
}

var syncTimeCmd = &cobra.Command{
	Use:   "sync-time",
	Short: "カメラの時計をこの端末に合わせる",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeParameter(cmd.Context(), func(ctx context.Context, cam *camera.Client) (camera.Parameters, error) {
			return cam.SyncTime(ctx, time.Now())
		})
	},
}

// changeParameter は変更を1回送り、カメラが確認したパラメータを表示する
func changeParameter(parent context.Context, change func(context.Context, *camera.Client) (camera.Parameters, error)) error {
	cfg, factory, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, 2*cfg.Camera.Timeout)
	defer cancel()

	params, err := change(ctx, newCameraClient(cfg, factory))
	if err != nil {
		return err
	}
	return printParameters(params)
}

func printParameters(params camera.Parameters) error {
	if jsonOutput {
		return printJSON(params)
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tVALUE")
	fmt.Fprintln(w, "----\t-----")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", name, params[name])
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(paramCmd)
	paramCmd.AddCommand(paramGetCmd)
	paramCmd.AddCommand(paramSetCmd)
	paramCmd.AddCommand(paramToggleCmd)

	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(syncTimeCmd)
}
