package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, "model.onnx", cfg.ModelPath)
	assert.Equal(t, "first", cfg.InferenceMode)
	assert.Equal(t, 2*time.Second, cfg.Window)
	assert.Equal(t, 2*time.Minute, cfg.ProcessTimeout)
	assert.GreaterOrEqual(t, cfg.Workers, 1)
	assert.Equal(t, 16, cfg.QueueSize)
	assert.Equal(t, int64(512<<20), cfg.MaxUploadBytes)
	assert.Equal(t, "*", cfg.AllowedOrigin)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("NEUROINFER_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("NEUROINFER_WINDOW", "4s")
	t.Setenv("NEUROINFER_WORKERS", "3")
	t.Setenv("NEUROINFER_INFERENCE_MODE", "all")
	t.Setenv("NEUROINFER_MAX_UPLOAD_BYTES", "1024")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.Equal(t, 4*time.Second, cfg.Window)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "all", cfg.InferenceMode)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"NEUROINFER_WINDOW":          "two seconds",
		"NEUROINFER_WORKERS":         "many",
		"NEUROINFER_PROCESS_TIMEOUT": "-1s",
		"NEUROINFER_QUEUE_SIZE":      "-4",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NEUROINFER_MODEL_PATH=/models/eeg.onnx\nNEUROINFER_HTTP_ADDR=:1234\n"), 0o600))
	t.Setenv("NEUROINFER_HTTP_ADDR", ":5555")
	t.Setenv("NEUROINFER_MODEL_PATH", "")
	os.Unsetenv("NEUROINFER_MODEL_PATH")

	require.NoError(t, LoadEnvFile(path))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/models/eeg.onnx", cfg.ModelPath)
	assert.Equal(t, ":5555", cfg.HTTPAddr, "existing variables win")

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, LoadEnvFile(""))
}
