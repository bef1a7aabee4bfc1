package realtime

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid realtime config")

const (
	DefaultWindowSize       = 10240
	DefaultStride           = 5120
	DefaultThresholdVotes   = 5
	DefaultSecondsThreshold = 3.0
	DefaultChunkWait        = 500 * time.Millisecond
	DefaultQueueCapacity    = 16
)

// Config is fixed for the lifetime of one query session. Build it with
// NewConfig or LoadConfig; a zero Config is rejected by NewQuery.
type Config struct {
	Stride           int
	WindowSize       int
	ThresholdVotes   int
	SecondsThreshold float64
	ChunkWait        time.Duration
	FlushOnStop      bool
	QueueCapacity    int

	validated bool
}

type Option func(*Config)

func WithStride(samples int) Option {
	return func(c *Config) {
		c.Stride = samples
	}
}

func WithWindowSize(samples int) Option {
	return func(c *Config) {
		c.WindowSize = samples
	}
}

func WithThresholdVotes(votes int) Option {
	return func(c *Config) {
		c.ThresholdVotes = votes
	}
}

func WithSecondsThreshold(seconds float64) Option {
	return func(c *Config) {
		c.SecondsThreshold = seconds
	}
}

func WithChunkWait(d time.Duration) Option {
	return func(c *Config) {
		c.ChunkWait = d
	}
}

// WithFlushOnStop controls whether tracks still matching when the session
// stops are emitted if they already reached the seconds threshold.
func WithFlushOnStop(flush bool) Option {
	return func(c *Config) {
		c.FlushOnStop = flush
	}
}

func WithQueueCapacity(n int) Option {
	return func(c *Config) {
		c.QueueCapacity = n
	}
}

func defaultConfig() Config {
	return Config{
		Stride:           DefaultStride,
		WindowSize:       DefaultWindowSize,
		ThresholdVotes:   DefaultThresholdVotes,
		SecondsThreshold: DefaultSecondsThreshold,
		ChunkWait:        DefaultChunkWait,
		FlushOnStop:      true,
		QueueCapacity:    DefaultQueueCapacity,
	}
}

// NewConfig applies opts over the defaults and validates the result.
func NewConfig(opts ...Option) (Config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.validated = true
	return cfg, nil
}

// Validate checks the session parameters.
func (c Config) Validate() error {
	if c.Stride <= 0 {
		return fmt.Errorf("%w: stride must be positive, got %d", ErrInvalidConfig, c.Stride)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidConfig, c.WindowSize)
	}
	if c.Stride >= c.WindowSize {
		return fmt.Errorf("%w: stride (%d) must be smaller than window size (%d)", ErrInvalidConfig, c.Stride, c.WindowSize)
	}
	if c.ThresholdVotes < 1 {
		return fmt.Errorf("%w: threshold votes must be at least 1, got %d", ErrInvalidConfig, c.ThresholdVotes)
	}
	if math.IsNaN(c.SecondsThreshold) || math.IsInf(c.SecondsThreshold, 0) || c.SecondsThreshold <= 0 {
		return fmt.Errorf("%w: seconds threshold must be a positive finite number, got %f", ErrInvalidConfig, c.SecondsThreshold)
	}
	if c.ChunkWait <= 0 {
		return fmt.Errorf("%w: chunk wait must be positive, got %v", ErrInvalidConfig, c.ChunkWait)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("%w: queue capacity must be at least 1, got %d", ErrInvalidConfig, c.QueueCapacity)
	}
	return nil
}

// Match returns the parameters forwarded to the MatchSource.
func (c Config) Match() MatchConfig {
	return MatchConfig{ThresholdVotes: c.ThresholdVotes}
}

// fileConfig mirrors Config for YAML; nil fields keep the defaults.
type fileConfig struct {
	Stride           *int           `yaml:"stride"`
	WindowSize       *int           `yaml:"window_size"`
	ThresholdVotes   *int           `yaml:"threshold_votes"`
	SecondsThreshold *float64       `yaml:"seconds_threshold"`
	ChunkWait        *time.Duration `yaml:"chunk_wait"`
	FlushOnStop      *bool          `yaml:"flush_on_stop"`
	QueueCapacity    *int           `yaml:"queue_capacity"`
}

func (f fileConfig) options() []Option {
	var opts []Option
	if f.Stride != nil {
		opts = append(opts, WithStride(*f.Stride))
	}
	if f.WindowSize != nil {
		opts = append(opts, WithWindowSize(*f.WindowSize))
	}
	if f.ThresholdVotes != nil {
		opts = append(opts, WithThresholdVotes(*f.ThresholdVotes))
	}
	if f.SecondsThreshold != nil {
		opts = append(opts, WithSecondsThreshold(*f.SecondsThreshold))
	}
	if f.ChunkWait != nil {
		opts = append(opts, WithChunkWait(*f.ChunkWait))
	}
	if f.FlushOnStop != nil {
		opts = append(opts, WithFlushOnStop(*f.FlushOnStop))
	}
	if f.QueueCapacity != nil {
		opts = append(opts, WithQueueCapacity(*f.QueueCapacity))
	}
	return opts
}

// LoadConfig reads a YAML session file. Options given here are applied after
// the file, so explicit flags win over file values.
func LoadConfig(path string, overrides ...Option) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return NewConfig(append(fc.options(), overrides...)...)
}
