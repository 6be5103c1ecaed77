// Package inference runs the pre-trained model on epoch tensors.
//
// The model is loaded once at startup. A failed load does not stop the
// process; the Adapter stays unavailable and every Run reports
// ErrModelUnavailable.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"neuroinfer/internal/tensor"
)

var (
	ErrModelUnavailable = errors.New("model not loaded")
	ErrInference        = errors.New("inference failed")
)

// Mode selects which windows of an epoch tensor reach the model.
type Mode string

const (
	// ModeFirst feeds only the first window, shaped (channels, samples).
	ModeFirst Mode = "first"
	// ModeAll runs every window and stacks the outputs on a new first axis.
	ModeAll Mode = "all"
)

// ParseMode accepts "first" or "all"; the empty string means ModeFirst.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFirst:
		return ModeFirst, nil
	case ModeAll:
		return ModeAll, nil
	}
	return "", fmt.Errorf("unknown inference mode %q", s)
}

// Model performs one forward pass. Implementations must be safe for
// concurrent use.
type Model interface {
	Run(ctx context.Context, input *tensor.Tensor[float32]) (*tensor.Tensor[float64], error)
	Close() error
}

// Adapter wraps a Model that may have failed to load.
type Adapter struct {
	model   Model
	loadErr error
	mode    Mode
	logger  *slog.Logger
}

// NewAdapter wraps an already loaded model.
func NewAdapter(m Model, mode Mode, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{model: m, mode: mode, logger: logger}
}

// Unavailable returns an Adapter that reports loadErr on every call.
func Unavailable(loadErr error, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{loadErr: loadErr, mode: ModeFirst, logger: logger}
}

// Load opens the model with open and logs, rather than returns, a failure.
func Load(open func() (Model, error), mode Mode, logger *slog.Logger) *Adapter {
	m, err := open()
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("failed to load model, inference disabled", "err", err)
		return Unavailable(err, logger)
	}
	return NewAdapter(m, mode, logger)
}

func (a *Adapter) Available() bool { return a.model != nil }

func (a *Adapter) Mode() Mode { return a.mode }

// Run feeds the epoch tensor (windows, channels, samples) to the model
// according to the adapter's mode and returns the first model output.
func (a *Adapter) Run(ctx context.Context, epochs *tensor.Tensor[float32]) (*tensor.Tensor[float64], error) {
	if a.model == nil {
		if a.loadErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, a.loadErr)
		}
		return nil, ErrModelUnavailable
	}
	if len(epochs.Shape) != 3 || epochs.Len() == 0 {
		return nil, fmt.Errorf("%w: expected a non-empty (windows, channels, samples) tensor, got shape %v", ErrInference, epochs.Shape)
	}

	if a.mode == ModeFirst {
		first, err := epochs.Index(0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInference, err)
		}
		return a.forward(ctx, first)
	}

	outs := make([]*tensor.Tensor[float64], 0, epochs.Len())
	for i := 0; i < epochs.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, err := epochs.Index(i)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInference, err)
		}
		out, err := a.forward(ctx, w)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	stacked, err := tensor.Stack(outs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	return stacked, nil
}

func (a *Adapter) forward(ctx context.Context, in *tensor.Tensor[float32]) (*tensor.Tensor[float64], error) {
	out, err := a.model.Run(ctx, in)
	if err != nil {
		if errors.Is(err, ErrInference) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	for i, v := range out.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: output element %d is %v", ErrInference, i, v)
		}
	}
	return out, nil
}

// Close releases the model, if any.
func (a *Adapter) Close() error {
	if a.model == nil {
		return nil
	}
	return a.model.Close()
}
