package analysis

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroinfer/internal/bdf"
	"neuroinfer/internal/converter"
	"neuroinfer/internal/inference"
	"neuroinfer/internal/tensor"
	"neuroinfer/internal/worker"
)

// meanModel returns the mean of its input as a one-element tensor.
type meanModel struct{}

func (meanModel) Run(ctx context.Context, in *tensor.Tensor[float32]) (*tensor.Tensor[float64], error) {
	var sum float64
	for _, v := range in.Data {
		sum += float64(v)
	}
	out := tensor.Zeros[float64](1)
	out.Data[0] = sum / float64(len(in.Data))
	return out, nil
}

func (meanModel) Close() error { return nil }

// blockingConverter waits for its context to end.
type blockingConverter struct{}

func (blockingConverter) Convert(ctx context.Context, path string, _ float64) (*tensor.Tensor[float32], *converter.Report, error) {
	<-ctx.Done()
	return nil, nil, ctx.Err()
}

// recordingConverter remembers the paths it was given and their contents.
type recordingConverter struct {
	mu       sync.Mutex
	paths    []string
	contents [][]byte
}

func (c *recordingConverter) Convert(ctx context.Context, path string, _ float64) (*tensor.Tensor[float32], *converter.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.contents = append(c.contents, data)
	c.mu.Unlock()
	out := tensor.Zeros[float32](1, 1, 1)
	return out, &converter.Report{WindowsTotal: 1, WindowsKept: 1}, nil
}

func newService(t *testing.T, conv Converter, model *inference.Adapter) *Service {
	t.Helper()
	pool := worker.New(2, 4)
	t.Cleanup(func() { pool.Close() })
	return &Service{
		Converter:     conv,
		Model:         model,
		Pool:          pool,
		TempDir:       t.TempDir(),
		WindowSeconds: 2,
		Timeout:       time.Minute,
	}
}

func available() *inference.Adapter {
	return inference.NewAdapter(meanModel{}, inference.ModeFirst, nil)
}

func recording(t *testing.T, seconds int) []byte {
	t.Helper()
	rec := bdf.Synthesize(bdf.SynthOptions{
		Channels:   []string{"Fp1", "Fp2", "C3", "C4"},
		Extra:      converter.DroppedChannels,
		SampleRate: 128,
		Seconds:    seconds,
		Amplitude:  20e-6,
		Frequency:  10,
	})
	var buf bytes.Buffer
	require.NoError(t, bdf.Write(&buf, rec))
	return buf.Bytes()
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files left behind")
}

func TestAnalyzeRecording(t *testing.T) {
	svc := newService(t, converter.New(nil), available())

	res, err := svc.Analyze(context.Background(), "session.bdf", bytes.NewReader(recording(t, 20)))
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, []int{1}, res.Output.Shape)
	assert.Equal(t, 10, res.Report.WindowsTotal)
	assert.Equal(t, 10, res.Report.WindowsKept)
	assertEmptyDir(t, svc.TempDir)
}

func TestAnalyzeChecksModelBeforeExtension(t *testing.T) {
	svc := newService(t, converter.New(nil), inference.Unavailable(os.ErrNotExist, nil))

	_, err := svc.Analyze(context.Background(), "notes.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, inference.ErrModelUnavailable)
	assertEmptyDir(t, svc.TempDir)
}

func TestAnalyzeRejectsOtherExtensions(t *testing.T) {
	svc := newService(t, converter.New(nil), available())

	for _, name := range []string{"notes.txt", "session.edf", "session.BDF", "bdf"} {
		_, err := svc.Analyze(context.Background(), name, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrValidation, name)
	}
	assertEmptyDir(t, svc.TempDir)
}

func TestAnalyzeRemovesTempFileOnDecodeFailure(t *testing.T) {
	svc := newService(t, converter.New(nil), available())

	_, err := svc.Analyze(context.Background(), "junk.bdf", strings.NewReader("definitely not a recording"))
	assert.ErrorIs(t, err, converter.ErrDecode)
	assertEmptyDir(t, svc.TempDir)
}

func TestAnalyzeShortRecordingIsEmptyResult(t *testing.T) {
	svc := newService(t, converter.New(nil), available())

	_, err := svc.Analyze(context.Background(), "short.bdf", bytes.NewReader(recording(t, 3)))
	assert.ErrorIs(t, err, converter.ErrEmptyResult)
	assertEmptyDir(t, svc.TempDir)
}

func TestAnalyzeTimeout(t *testing.T) {
	svc := newService(t, blockingConverter{}, available())
	svc.Timeout = 20 * time.Millisecond

	_, err := svc.Analyze(context.Background(), "slow.bdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assertEmptyDir(t, svc.TempDir)
}

func TestConcurrentUploadsUseDistinctFiles(t *testing.T) {
	conv := &recordingConverter{}
	svc := newService(t, conv, available())

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := strings.Repeat(string(rune('a'+i)), 64)
			_, errs[i] = svc.Analyze(context.Background(), "same-name.bdf", strings.NewReader(body))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	seen := make(map[string]bool, n)
	for i, p := range conv.paths {
		assert.False(t, seen[p], "path reused: %s", p)
		seen[p] = true
		data := conv.contents[i]
		require.Len(t, data, 64)
		assert.Equal(t, strings.Repeat(string(data[0]), 64), string(data), "upload contents mixed")
	}
	assert.Len(t, seen, n)
	assertEmptyDir(t, svc.TempDir)
}
