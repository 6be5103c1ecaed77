package commands

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"neuroinfer/internal/converter"
)

var convertWindow time.Duration

var convertCmd = &cobra.Command{
	Use:   "convert FILE",
	Short: "Run the signal pipeline on a BDF file and print a summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		window := cfg.Window
		if cmd.Flags().Changed("window") {
			window = convertWindow
		}
		epochs, report, err := converter.New(logger).Convert(cmd.Context(), args[0], window.Seconds())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			File   string            `json:"file"`
			Shape  []int             `json:"shape"`
			Report *converter.Report `json:"report"`
		}{args[0], epochs.Shape, report})
	},
}

func init() {
	convertCmd.Flags().DurationVar(&convertWindow, "window", 2*time.Second, "epoch length")
}
