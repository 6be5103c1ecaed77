package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"neuroinfer/internal/converter"
	"neuroinfer/internal/inference"
)

var predictFlags struct {
	model  string
	ortLib string
	mode   string
}

var predictCmd = &cobra.Command{
	Use:   "predict FILE",
	Short: "Convert a BDF file and run the model on it locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		if f.Changed("model") {
			cfg.ModelPath = predictFlags.model
		}
		if f.Changed("ort-lib") {
			cfg.ORTLibraryPath = predictFlags.ortLib
		}
		if f.Changed("mode") {
			cfg.InferenceMode = predictFlags.mode
		}
		mode, err := inference.ParseMode(cfg.InferenceMode)
		if err != nil {
			return err
		}

		m, err := inference.OpenONNX(cfg.ModelPath, cfg.ORTLibraryPath)
		if err != nil {
			return err
		}
		model := inference.NewAdapter(m, mode, logger)
		defer inference.ShutdownRuntime()
		defer model.Close()

		epochs, _, err := converter.New(logger).Convert(cmd.Context(), args[0], cfg.Window.Seconds())
		if err != nil {
			return err
		}
		out, err := model.Run(cmd.Context(), epochs)
		if err != nil {
			return err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
			"result": out.Nested(),
			"status": "success",
		})
	},
}

func init() {
	f := predictCmd.Flags()
	f.StringVar(&predictFlags.model, "model", "model.onnx", "path to the ONNX model")
	f.StringVar(&predictFlags.ortLib, "ort-lib", "", "path to the onnxruntime shared library")
	f.StringVar(&predictFlags.mode, "mode", "first", "inference mode: first or all")
}
