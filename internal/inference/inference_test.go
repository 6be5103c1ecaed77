package inference

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroinfer/internal/tensor"
)

// sumModel returns, for a (channels, samples) input, the per-channel sums.
type sumModel struct {
	mu     sync.Mutex
	calls  int
	err    error
	closed bool
}

func (m *sumModel) Run(ctx context.Context, in *tensor.Tensor[float32]) (*tensor.Tensor[float64], error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	rows, cols := in.Shape[0], in.Shape[1]
	out := tensor.Zeros[float64](rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.Data[r] += float64(in.Data[r*cols+c])
		}
	}
	return out, nil
}

func (m *sumModel) Close() error {
	m.closed = true
	return nil
}

func epochs(t *testing.T) *tensor.Tensor[float32] {
	t.Helper()
	// 3 windows, 2 channels, 2 samples.
	ep, err := tensor.New([]int{3, 2, 2}, []float32{
		1, 1, 2, 2,
		3, 3, 4, 4,
		5, 5, 6, 6,
	})
	require.NoError(t, err)
	return ep
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFirst, m)

	m, err = ParseMode("all")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, m)

	_, err = ParseMode("every")
	assert.Error(t, err)
}

func TestAdapterFirstWindow(t *testing.T) {
	m := &sumModel{}
	a := NewAdapter(m, ModeFirst, nil)
	require.True(t, a.Available())

	out, err := a.Run(context.Background(), epochs(t))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, out.Shape)
	assert.Equal(t, []float64{2, 4}, out.Data)
	assert.Equal(t, 1, m.calls)
}

func TestAdapterAllWindows(t *testing.T) {
	m := &sumModel{}
	a := NewAdapter(m, ModeAll, nil)

	out, err := a.Run(context.Background(), epochs(t))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, out.Shape)
	assert.Equal(t, []float64{2, 4, 6, 8, 10, 12}, out.Data)
	assert.Equal(t, 3, m.calls)
}

func TestAdapterUnavailable(t *testing.T) {
	loadErr := errors.New("open model.onnx: no such file or directory")
	a := Load(func() (Model, error) { return nil, loadErr }, ModeFirst, nil)
	assert.False(t, a.Available())

	_, err := a.Run(context.Background(), epochs(t))
	require.ErrorIs(t, err, ErrModelUnavailable)
	assert.Contains(t, err.Error(), "no such file")
	assert.NoError(t, a.Close())
}

func TestAdapterWrapsRuntimeErrors(t *testing.T) {
	a := NewAdapter(&sumModel{err: errors.New("input rank mismatch")}, ModeFirst, nil)

	_, err := a.Run(context.Background(), epochs(t))
	require.ErrorIs(t, err, ErrInference)
	assert.Contains(t, err.Error(), "input rank mismatch")
}

// nanModel returns a non-finite score.
type nanModel struct{}

func (nanModel) Run(ctx context.Context, in *tensor.Tensor[float32]) (*tensor.Tensor[float64], error) {
	out := tensor.Zeros[float64](2)
	out.Data[0] = math.NaN()
	out.Data[1] = math.Inf(1)
	return out, nil
}

func (nanModel) Close() error { return nil }

func TestAdapterRejectsNonFiniteOutput(t *testing.T) {
	a := NewAdapter(nanModel{}, ModeFirst, nil)

	_, err := a.Run(context.Background(), epochs(t))
	require.ErrorIs(t, err, ErrInference)
	assert.Contains(t, err.Error(), "NaN")
}

func TestAdapterRejectsBadShape(t *testing.T) {
	a := NewAdapter(&sumModel{}, ModeFirst, nil)
	flat, err := tensor.New([]int{4}, []float32{1, 2, 3, 4})
	require.NoError(t, err)

	_, err = a.Run(context.Background(), flat)
	assert.ErrorIs(t, err, ErrInference)
}

func TestAdapterAllStopsOnCancel(t *testing.T) {
	m := &sumModel{}
	a := NewAdapter(m, ModeAll, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Run(ctx, epochs(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.calls)
}

func TestAdapterClose(t *testing.T) {
	m := &sumModel{}
	a := Load(func() (Model, error) { return m, nil }, ModeFirst, nil)
	require.NoError(t, a.Close())
	assert.True(t, m.closed)
}

func TestOpenONNXWithoutPath(t *testing.T) {
	_, err := OpenONNX("", "")
	assert.Error(t, err)
}
