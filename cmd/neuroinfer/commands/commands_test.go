package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroinfer/internal/worker"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSynthThenConvert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synthetic.bdf")
	out, err := run(t, "synth", path,
		"--seconds", "20", "--rate", "128", "--channels", "Fp1,Fp2,C3,C4",
		"--artifact", "6", "--artifact", "14")
	require.NoError(t, err)
	assert.Contains(t, out, "13 channels")

	out, err = run(t, "convert", path, "--window", "2s")
	require.NoError(t, err)

	var summary struct {
		Shape  []int `json:"shape"`
		Report struct {
			Channels     []string `json:"channels"`
			WindowsTotal int      `json:"windows_total"`
			WindowsKept  int      `json:"windows_kept"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, []string{"Fp1", "Fp2", "C3", "C4"}, summary.Report.Channels)
	assert.Equal(t, 10, summary.Report.WindowsTotal)
	assert.LessOrEqual(t, summary.Report.WindowsKept, 8)
	require.Len(t, summary.Shape, 3)
	assert.Equal(t, summary.Report.WindowsKept, summary.Shape[0])
	assert.Equal(t, 4, summary.Shape[1])
	assert.Equal(t, 256, summary.Shape[2])
}

func TestConvertMissingFile(t *testing.T) {
	_, err := run(t, "convert", filepath.Join(t.TempDir(), "absent.bdf"))
	assert.Error(t, err)
}

func TestSynthRejectsBadOptions(t *testing.T) {
	_, err := run(t, "synth", filepath.Join(t.TempDir(), "x.bdf"), "--seconds", "0")
	assert.Error(t, err)
}

func TestBadLogLevel(t *testing.T) {
	_, err := run(t, "--log-level", "shouting", "convert", "x.bdf")
	assert.Error(t, err)
}

func TestStopWorkersKeepsModelWhileJobRuns(t *testing.T) {
	pool := worker.New(1, 0)
	release := make(chan struct{})
	job, err := worker.Submit(context.Background(), pool, func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})
	require.NoError(t, err)

	closed := false
	err = stopWorkers(pool, 20*time.Millisecond, func() error {
		closed = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, closed)

	close(release)
	_, err = job.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, pool.Close())
}

func TestStopWorkersReleasesInOrder(t *testing.T) {
	pool := worker.New(1, 1)
	var order []string
	boom := errors.New("boom")
	err := stopWorkers(pool, time.Second,
		func() error { order = append(order, "model"); return boom },
		func() error { order = append(order, "runtime"); return nil },
	)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"model", "runtime"}, order)
}
