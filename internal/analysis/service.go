// Package analysis turns an uploaded recording into a model result: it
// validates the upload, spools it to a private temp file and runs
// conversion and inference on the worker pool.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"neuroinfer/internal/converter"
	"neuroinfer/internal/inference"
	"neuroinfer/internal/tensor"
	"neuroinfer/internal/worker"
)

const Extension = ".bdf"

var ErrValidation = errors.New("invalid upload")

// Converter turns a recording on disk into an epoch tensor.
type Converter interface {
	Convert(ctx context.Context, path string, windowSeconds float64) (*tensor.Tensor[float32], *converter.Report, error)
}

// Model runs inference on an epoch tensor.
type Model interface {
	Available() bool
	Run(ctx context.Context, epochs *tensor.Tensor[float32]) (*tensor.Tensor[float64], error)
}

type Result struct {
	ID     string
	Output *tensor.Tensor[float64]
	Report *converter.Report
}

type Service struct {
	Converter     Converter
	Model         Model
	Pool          *worker.Pool
	Logger        *slog.Logger
	TempDir       string
	WindowSeconds float64
	Timeout       time.Duration
}

// Analyze processes one upload. The temp file holding the upload is removed
// before Analyze returns, whatever the outcome.
func (s *Service) Analyze(ctx context.Context, filename string, body io.Reader) (*Result, error) {
	if !s.Model.Available() {
		return nil, inference.ErrModelUnavailable
	}
	if !strings.HasSuffix(filename, Extension) {
		return nil, fmt.Errorf("%w: only %s files are accepted", ErrValidation, Extension)
	}

	id := uuid.NewString()
	path, err := s.spool(id, body)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger().Warn("remove upload", "id", id, "path", path, "err", err)
		}
	}()

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start := time.Now()
	f, err := worker.Submit(ctx, s.Pool, func(ctx context.Context) (*Result, error) {
		epochs, report, err := s.Converter.Convert(ctx, path, s.WindowSeconds)
		if err != nil {
			return nil, err
		}
		out, err := s.Model.Run(ctx, epochs)
		if err != nil {
			return nil, err
		}
		return &Result{ID: id, Output: out, Report: report}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}
	res, err := f.Wait(ctx)
	if err != nil {
		return nil, err
	}
	s.logger().Info("analysis finished",
		"id", id,
		"file", filename,
		"windows_total", res.Report.WindowsTotal,
		"windows_kept", res.Report.WindowsKept,
		"threshold", res.Report.Threshold,
		"duration", time.Since(start),
	)
	return res, nil
}

func (s *Service) spool(id string, body io.Reader) (string, error) {
	f, err := os.CreateTemp(s.TempDir, "upload-"+id+"-*"+Extension)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("store upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("store upload: %w", err)
	}
	return f.Name(), nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
