package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"campanel/internal/camera"
)

// Parent Command
var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "カメラの録画フォルダを操作する",
}

var mediaListCmd = &cobra.Command{
	Use:   "list",
	Short: "録画ファイルを一覧する",
	Long:  "録画中の場合は先に録画を止めてから一覧を取得する。",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mediaOperation(cmd.Context(), func(ctx context.Context, cam *camera.Client) (*camera.MediaListing, error) {
			params, err := cam.Display(ctx)
			if err != nil {
				return nil, err
			}
			if params["record"] == "1" {
				if _, err := cam.Change(ctx, "record", "0"); err != nil {
					return nil, fmt.Errorf("録画の停止に失敗: %w", err)
				}
			}
			return cam.Media(ctx)
		})
	},
}

var mediaRemoveCmd = &cobra.Command{
	Use:   "rm <file>",
	Short: "録画ファイルを削除する",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mediaOperation(cmd.Context(), func(ctx context.Context, cam *camera.Client) (*camera.MediaListing, error) {
			return cam.Remove(ctx, args[0])
		})
	},
}

var mediaClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "録画ファイルを全て削除する",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mediaOperation(cmd.Context(), func(ctx context.Context, cam *camera.Client) (*camera.MediaListing, error) {
			return cam.Remove(ctx, "")
		})
	},
}

func mediaOperation(parent context.Context, op func(context.Context, *camera.Client) (*camera.MediaListing, error)) error {
	cfg, factory, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, 2*cfg.Camera.Timeout)
	defer cancel()

	listing, err := op(ctx, newCameraClient(cfg, factory))
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(listing)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FILE\tSIZE")
	fmt.Fprintln(w, "----\t----")
	for _, f := range listing.Files {
		fmt.Fprintf(w, "%s\t%s\n", f.Name, f.Size)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("空き容量: %.1f GiB\n", listing.FreeGiB)
	return nil
}

func init() {
	rootCmd.AddCommand(mediaCmd)
	mediaCmd.AddCommand(mediaListCmd)
	mediaCmd.AddCommand(mediaRemoveCmd)
	mediaCmd.AddCommand(mediaClearCmd)
}
