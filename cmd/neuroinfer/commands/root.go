package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"neuroinfer/internal/config"
	"neuroinfer/internal/logging"
)

var (
	// Global flags
	envFile   string
	logLevel  string
	logFormat string

	// Set by the root PersistentPreRunE before any subcommand runs.
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "neuroinfer",
	Short: "EEG recording inference service",
	Long: `neuroinfer accepts BioSemi BDF recordings, cleans and segments them into
epochs and runs a pre-trained ONNX model on the result.

Settings come from NEUROINFER_* environment variables, optionally loaded
from a .env file, and can be overridden by flags.

Examples:
  # Start the API with a model and a users table
  neuroinfer serve --model model.onnx --users users.yaml

  # Inspect what the pipeline makes of a recording
  neuroinfer convert session.bdf --window 2s
`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Command returns the root cobra command.
func Command() *cobra.Command {
	return rootCmd
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(synthCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	var err error
	if cfg, err = config.Load(); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	logger, err = logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}
