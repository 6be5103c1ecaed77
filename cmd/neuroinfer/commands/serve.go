package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"neuroinfer/internal/analysis"
	"neuroinfer/internal/auth"
	"neuroinfer/internal/converter"
	"neuroinfer/internal/httpserver"
	"neuroinfer/internal/inference"
	"neuroinfer/internal/worker"
)

var serveFlags struct {
	addr    string
	model   string
	users   string
	ortLib  string
	mode    string
	workers int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		if f.Changed("addr") {
			cfg.HTTPAddr = serveFlags.addr
		}
		if f.Changed("model") {
			cfg.ModelPath = serveFlags.model
		}
		if f.Changed("users") {
			cfg.UsersPath = serveFlags.users
		}
		if f.Changed("ort-lib") {
			cfg.ORTLibraryPath = serveFlags.ortLib
		}
		if f.Changed("mode") {
			cfg.InferenceMode = serveFlags.mode
		}
		if f.Changed("workers") {
			cfg.Workers = serveFlags.workers
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return serve(cmd.Context())
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", ":8000", "listen address")
	f.StringVar(&serveFlags.model, "model", "model.onnx", "path to the ONNX model")
	f.StringVar(&serveFlags.users, "users", "", "YAML users file (default: a single admin/admin user)")
	f.StringVar(&serveFlags.ortLib, "ort-lib", "", "path to the onnxruntime shared library")
	f.StringVar(&serveFlags.mode, "mode", "first", "inference mode: first or all")
	f.IntVar(&serveFlags.workers, "workers", 0, "conversion workers (default: number of CPUs)")
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mode, err := inference.ParseMode(cfg.InferenceMode)
	if err != nil {
		return err
	}

	userStore := auth.NewStore(0)
	if cfg.UsersPath != "" {
		if err := userStore.SeedFromFile(ctx, cfg.UsersPath); err != nil {
			return err
		}
	} else if err := userStore.SeedDefault(ctx); err != nil {
		return err
	}
	authSvc := auth.NewService(userStore, auth.NewSessionManager())

	model := inference.Load(func() (inference.Model, error) {
		return inference.OpenONNX(cfg.ModelPath, cfg.ORTLibraryPath)
	}, mode, logger)
	if model.Available() {
		logger.Info("model loaded", "path", cfg.ModelPath, "mode", mode)
	}

	pool := worker.New(cfg.Workers, cfg.QueueSize)
	svc := &analysis.Service{
		Converter:     converter.New(logger),
		Model:         model,
		Pool:          pool,
		Logger:        logger,
		TempDir:       cfg.TempDir,
		WindowSeconds: cfg.Window.Seconds(),
		Timeout:       cfg.ProcessTimeout,
	}

	handler := httpserver.NewRouter(logger, authSvc, svc, model, httpserver.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		AllowedOrigin:  cfg.AllowedOrigin,
	})
	server := httpserver.New(cfg.HTTPAddr, handler, logger, cfg.ProcessTimeout)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info("signal received", "signal", sig.String())
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	if err := stopWorkers(pool, cfg.ProcessTimeout, model.Close, inference.ShutdownRuntime); err != nil {
		logger.Error("worker pool shutdown", "err", err)
	}
	return serveErr
}

// stopWorkers drains pool within timeout, then runs release in order. If a
// job may still be running, release is skipped so the model stays valid
// until the process exits.
func stopWorkers(pool *worker.Pool, timeout time.Duration, release ...func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		return fmt.Errorf("drain workers, leaving model open: %w", err)
	}
	var errs []error
	for _, fn := range release {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
