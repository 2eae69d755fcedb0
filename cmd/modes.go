package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"campanel/internal/camera"
)

var modesResolution string

var modesCmd = &cobra.Command{
	Use:     "modes <model> <mode>",
	Short:   "センサーモードで選べるフレームレートと解像度を表示する",
	Example: "  campanel modes imx219 6 --resolution 1280x720",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		model := args[0]
		mode, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("センサーモードは数値です: %q", args[1])
		}

		opts, err := camera.Lookup(model, mode, modesResolution)
		if err != nil {
			return err
		}

		labels := camera.SensorModeLabels(model)
		if jsonOutput {
			return printJSON(struct {
				Model        string              `json:"model"`
				Mode         int                 `json:"mode"`
				Options      camera.ModeOptions  `json:"options"`
				Labels       []string            `json:"labels"`
				Capabilities camera.Capabilities `json:"capabilities"`
			}{model, mode, opts, labels, camera.CapabilitiesOf(model)})
		}

		if mode < len(labels) {
			fmt.Printf("%s モード %d: %s\n", model, mode, labels[mode])
		}
		fmt.Printf("フレームレート: %s\n", joinInts(opts.Framerates))

		visible := make(map[string]bool, len(opts.Visible))
		for _, name := range opts.Visible {
			visible[name] = true
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "PRESET\tRESOLUTION\tASPECT\tVISIBLE")
		fmt.Fprintln(w, "------\t----------\t------\t-------")
		for _, p := range camera.ResolutionPresets {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", p.Name, p.Value(), p.Aspect, visible[p.Name])
		}
		return w.Flush()
	},
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

func init() {
	rootCmd.AddCommand(modesCmd)
	modesCmd.Flags().StringVar(&modesResolution, "resolution", "", "現在の解像度 (例: 1280x720)")
}
