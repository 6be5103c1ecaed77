// Package converter turns a BDF recording into the epoch tensor the model
// was trained on.
//
// The pipeline is fixed: drop auxiliary channels, re-reference to the
// channel average, zero-phase FIR high-pass at 0.5 Hz, cut into
// non-overlapping windows, estimate a global peak-to-peak rejection
// threshold from the windows themselves, drop windows above it and stack
// the rest into a (windows, channels, samples) tensor.
package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"neuroinfer/internal/bdf"
	"neuroinfer/internal/tensor"
)

// HighPassHz is the lower pass-band edge of the drift filter.
const HighPassHz = 0.5

// DroppedChannels are removed before re-referencing. Every one of them must
// be present in the recording.
var DroppedChannels = []string{
	"EXG1", "EXG2", "EXG3", "EXG4", "EXG5", "EXG6", "EXG7", "EXG8", "Status",
}

var (
	ErrDecode        = errors.New("recording could not be decoded")
	ErrEmptyResult   = errors.New("no usable windows after artifact rejection")
	ErrInvalidWindow = errors.New("window duration must be positive")
)

// Report summarizes one conversion.
type Report struct {
	Channels      []string `json:"channels"`
	SampleRate    float64  `json:"sample_rate"`
	WindowSamples int      `json:"window_samples"`
	WindowsTotal  int      `json:"windows_total"`
	WindowsKept   int      `json:"windows_kept"`
	Threshold     float64  `json:"threshold"`
}

type Converter struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{logger: logger}
}

// Convert decodes the file at path and runs the full pipeline.
func (c *Converter) Convert(ctx context.Context, path string, windowSeconds float64) (*tensor.Tensor[float32], *Report, error) {
	if windowSeconds <= 0 || math.IsNaN(windowSeconds) {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidWindow, windowSeconds)
	}
	rec, err := bdf.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return c.ConvertRecording(ctx, rec, windowSeconds)
}

// ConvertRecording runs the pipeline on an already decoded recording. The
// recording's data is modified in place.
func (c *Converter) ConvertRecording(ctx context.Context, rec *bdf.Recording, windowSeconds float64) (*tensor.Tensor[float32], *Report, error) {
	if windowSeconds <= 0 || math.IsNaN(windowSeconds) {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidWindow, windowSeconds)
	}

	labels, data, fs, err := selectChannels(rec)
	if err != nil {
		return nil, nil, err
	}
	report := &Report{Channels: labels, SampleRate: fs}

	averageReference(data)

	if err := ctx.Err(); err != nil {
		return nil, report, err
	}
	filt := newHighPass(fs, HighPassHz)
	for i := range data {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		data[i] = filt.apply(data[i])
	}

	winLen := int(math.Round(windowSeconds * fs))
	if winLen <= 0 {
		return nil, report, fmt.Errorf("%w: %v s at %v Hz is shorter than one sample", ErrInvalidWindow, windowSeconds, fs)
	}
	report.WindowSamples = winLen
	epochs := segment(data, winLen)
	report.WindowsTotal = len(epochs)

	if err := ctx.Err(); err != nil {
		return nil, report, err
	}
	ptp := make([]float64, len(epochs))
	for i, e := range epochs {
		ptp[i] = peakToPeak(e, len(data), winLen)
	}
	thresh, err := estimateThreshold(ctx, epochs, ptp)
	if err != nil {
		return nil, report, err
	}
	report.Threshold = thresh

	kept := make([][]float64, 0, len(epochs))
	for i, e := range epochs {
		if ptp[i] <= thresh {
			kept = append(kept, e)
		}
	}
	report.WindowsKept = len(kept)
	if len(kept) == 0 {
		return nil, report, fmt.Errorf("%w: all %d windows exceed %g", ErrEmptyResult, len(epochs), thresh)
	}

	out := tensor.Zeros[float32](len(kept), len(data), winLen)
	stride := len(data) * winLen
	for i, e := range kept {
		dst := out.Data[i*stride : (i+1)*stride]
		for j, v := range e {
			dst[j] = float32(v)
		}
	}

	c.logger.Debug("recording converted",
		"channels", len(labels),
		"sample_rate", fs,
		"windows_total", report.WindowsTotal,
		"windows_kept", report.WindowsKept,
		"threshold", thresh,
	)
	return out, report, nil
}

// selectChannels drops the auxiliary channels and checks that the rest share
// one sampling rate.
func selectChannels(rec *bdf.Recording) ([]string, [][]float64, float64, error) {
	drop := make(map[string]bool, len(DroppedChannels))
	for _, name := range DroppedChannels {
		drop[name] = false
	}
	var (
		labels []string
		data   [][]float64
		fs     float64
	)
	for i, s := range rec.Header.Signals {
		if _, ok := drop[s.Label]; ok {
			drop[s.Label] = true
			continue
		}
		rate := s.SampleRate(rec.Header.RecordDuration)
		if fs == 0 {
			fs = rate
		} else if rate != fs {
			return nil, nil, 0, fmt.Errorf("%w: channel %q sampled at %v Hz, expected %v Hz", ErrDecode, s.Label, rate, fs)
		}
		labels = append(labels, s.Label)
		data = append(data, rec.Data[i])
	}
	for _, name := range DroppedChannels {
		if !drop[name] {
			return nil, nil, 0, fmt.Errorf("%w: channel %q not found", ErrDecode, name)
		}
	}
	if len(data) == 0 {
		return nil, nil, 0, fmt.Errorf("%w: no signal channels left", ErrDecode)
	}
	return labels, data, fs, nil
}

// averageReference subtracts the across-channel mean from every sample.
func averageReference(data [][]float64) {
	n := len(data[0])
	inv := 1 / float64(len(data))
	for t := 0; t < n; t++ {
		var sum float64
		for _, ch := range data {
			sum += ch[t]
		}
		mean := sum * inv
		for _, ch := range data {
			ch[t] -= mean
		}
	}
}

// segment cuts data into consecutive windows of winLen samples. Each window
// is flattened channel-major. A trailing partial window is discarded.
func segment(data [][]float64, winLen int) [][]float64 {
	n := len(data[0]) / winLen
	epochs := make([][]float64, n)
	for w := range epochs {
		e := make([]float64, len(data)*winLen)
		for c, ch := range data {
			copy(e[c*winLen:(c+1)*winLen], ch[w*winLen:(w+1)*winLen])
		}
		epochs[w] = e
	}
	return epochs
}

// peakToPeak returns the largest per-channel peak-to-peak amplitude of a
// flattened window.
func peakToPeak(epoch []float64, channels, samples int) float64 {
	var worst float64
	for c := 0; c < channels; c++ {
		row := epoch[c*samples : (c+1)*samples]
		worst = max(worst, floats.Max(row)-floats.Min(row))
	}
	return worst
}
