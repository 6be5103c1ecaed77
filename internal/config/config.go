package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr       string
	ModelPath      string
	ORTLibraryPath string
	UsersPath      string
	TempDir        string
	AllowedOrigin  string
	InferenceMode  string
	Window         time.Duration
	ProcessTimeout time.Duration
	Workers        int
	QueueSize      int
	MaxUploadBytes int64
	LogLevel       string
	LogFormat      string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// LoadEnvFile copies variables from a dotenv file into the environment
// without overriding ones already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:       getenv("NEUROINFER_HTTP_ADDR", ":8000"),
		ModelPath:      getenv("NEUROINFER_MODEL_PATH", "model.onnx"),
		ORTLibraryPath: os.Getenv("NEUROINFER_ORT_LIBRARY"),
		UsersPath:      os.Getenv("NEUROINFER_USERS_PATH"),
		TempDir:        os.Getenv("NEUROINFER_TEMP_DIR"),
		AllowedOrigin:  getenv("NEUROINFER_ALLOWED_ORIGIN", "*"),
		InferenceMode:  getenv("NEUROINFER_INFERENCE_MODE", "first"),
		LogLevel:       getenv("NEUROINFER_LOG_LEVEL", "info"),
		LogFormat:      getenv("NEUROINFER_LOG_FORMAT", "text"),
	}

	var err error
	if cfg.Window, err = duration("NEUROINFER_WINDOW", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ProcessTimeout, err = duration("NEUROINFER_PROCESS_TIMEOUT", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.Workers, err = integer("NEUROINFER_WORKERS", runtime.NumCPU()); err != nil {
		return Config{}, err
	}
	if cfg.QueueSize, err = integer("NEUROINFER_QUEUE_SIZE", 16); err != nil {
		return Config{}, err
	}
	maxUpload, err := integer("NEUROINFER_MAX_UPLOAD_BYTES", 512<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Window <= 0:
		return fmt.Errorf("window must be positive, got %s", c.Window)
	case c.ProcessTimeout <= 0:
		return fmt.Errorf("process timeout must be positive, got %s", c.ProcessTimeout)
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	case c.QueueSize < 0:
		return fmt.Errorf("queue size must not be negative, got %d", c.QueueSize)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func integer(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
