package workqueue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-workqueue/core"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"gopkg.in/yaml.v3"
)

// Config describes a pool and the queue that runs on it.
type Config struct {
	Pool    PoolConfig    `yaml:"pool" json:"pool"`
	Queue   QueueConfig   `yaml:"queue" json:"queue"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

type PoolConfig struct {
	Name       string `yaml:"name" json:"name"`
	MinThreads int    `yaml:"minThreads" json:"minThreads"`
	MaxThreads int    `yaml:"maxThreads" json:"maxThreads"`
}

type QueueConfig struct {
	Name             string `yaml:"name" json:"name"`
	ConcurrencyLimit int    `yaml:"concurrencyLimit" json:"concurrencyLimit"`
	HistorySize      int    `yaml:"historySize" json:"historySize"`
}

// MetricsConfig controls the Prometheus exporter and snapshot poller.
type MetricsConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Namespace    string        `yaml:"namespace" json:"namespace"`
	PollInterval time.Duration `yaml:"pollInterval" json:"pollInterval"`
	Address      string        `yaml:"address" json:"address"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Pool: PoolConfig{
			Name:       "workqueue-pool",
			MinThreads: DefaultMinThreads,
			MaxThreads: DefaultMaxThreads,
		},
		Queue: QueueConfig{
			Name:             "workqueue",
			ConcurrencyLimit: core.DefaultConcurrentLimit,
			HistorySize:      100,
		},
		Metrics: MetricsConfig{
			Namespace:    "workqueue",
			PollInterval: 5 * time.Second,
			Address:      ":9090",
		},
	}
}

// Validate reports every invalid field, each wrapping ErrInvalidArgument.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{core.ErrInvalidArgument}, args...)...))
	}

	if c.Pool.MaxThreads < 1 {
		invalid("pool.maxThreads must be at least 1, got %d", c.Pool.MaxThreads)
	}
	if c.Pool.MinThreads < 0 {
		invalid("pool.minThreads must not be negative, got %d", c.Pool.MinThreads)
	}
	if c.Pool.MinThreads > c.Pool.MaxThreads {
		invalid("pool.minThreads %d exceeds pool.maxThreads %d", c.Pool.MinThreads, c.Pool.MaxThreads)
	}
	if c.Queue.ConcurrencyLimit < 1 || c.Queue.ConcurrencyLimit > core.MaxConcurrentLimit {
		invalid("queue.concurrencyLimit must be within [1, %d], got %d", core.MaxConcurrentLimit, c.Queue.ConcurrencyLimit)
	}
	if c.Queue.HistorySize < 0 {
		invalid("queue.historySize must not be negative, got %d", c.Queue.HistorySize)
	}
	if c.Metrics.Enabled && c.Metrics.PollInterval <= 0 {
		invalid("metrics.pollInterval must be positive when metrics are enabled")
	}
	return errors.Join(errs...)
}

// ParseConfig decodes YAML (or JSON) over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a config from any afs URL, including a plain local path.
func LoadConfig(ctx context.Context, URL string) (Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", URL, err)
	}
	return ParseConfig(data)
}

// Marshal encodes the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// SaveConfig writes cfg as YAML to any afs URL.
func SaveConfig(ctx context.Context, URL string, cfg Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	fs := afs.New()
	return fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data))
}

// Runtime is a pool and a queue built from a Config.
type Runtime struct {
	Config Config
	Pool   *WorkerPool
	Queue  *WorkQueue
}

// NewFromConfig validates cfg and builds the pool and queue it describes.
// logger and metrics may be nil.
func NewFromConfig(cfg Config, logger core.Logger, metrics core.Metrics) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = core.NewNoOpLogger()
	}

	pool, err := NewWorkerPool(cfg.Pool.Name,
		WithMinThreads(cfg.Pool.MinThreads),
		WithMaxThreads(cfg.Pool.MaxThreads),
		WithPoolLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	queueOpts := []QueueOption{
		WithName(cfg.Queue.Name),
		WithConcurrentLimit(cfg.Queue.ConcurrencyLimit),
		WithLogger(logger),
		WithHistorySize(cfg.Queue.HistorySize),
	}
	if metrics != nil {
		queueOpts = append(queueOpts, WithMetrics(metrics))
	}

	return &Runtime{
		Config: cfg,
		Pool:   pool,
		Queue:  NewWorkQueue(pool, queueOpts...),
	}, nil
}

// Close shuts the pool down.
func (r *Runtime) Close() error {
	return r.Pool.Shutdown()
}
