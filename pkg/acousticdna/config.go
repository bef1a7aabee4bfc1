package acousticdna

import (
	"os"

	"github.com/himanishpuri/acousticdna-live/pkg/acousticdna/audio"
	"github.com/himanishpuri/acousticdna-live/pkg/acousticdna/storage"
)

type Config struct {
	DBPath     string
	TempDir    string
	SampleRate int
	Logger     Logger
	Storage    Storage
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithSampleRate sets the rate audio is converted to before fingerprinting.
// Queries must use the rate the index was built with.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func defaultConfig() *Config {
	cfg := &Config{
		DBPath:     storage.DefaultDBFile,
		TempDir:    os.TempDir(),
		SampleRate: audio.DefaultSampleRate,
	}
	if v := os.Getenv("ACOUSTIC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ACOUSTIC_TEMP_DIR"); v != "" {
		cfg.TempDir = v
	}
	return cfg
}
