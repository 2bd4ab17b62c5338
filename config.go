package signalfsm

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file and default values
const (
	EnvMaxChainedTransitions = "SIGNALFSM_MAX_CHAINED_TRANSITIONS"
	EnvQueueSize             = "SIGNALFSM_QUEUE_SIZE"
	EnvLogLevel              = "SIGNALFSM_LOG_LEVEL"
)

// Config holds deployment settings for machines and runners.
type Config struct {
	// MaxChainedTransitions bounds the transition chain of one event. Must be > 0.
	MaxChainedTransitions uint32 `yaml:"max_chained_transitions"`
	// QueueSize is the Runner event queue capacity. Must be > 0.
	QueueSize int `yaml:"queue_size"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the default configuration with environment
// overrides applied.
func DefaultConfig() *Config {
	cfg := defaults()
	applyEnvironmentOverrides(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		MaxChainedTransitions: 8,
		QueueSize:             DefaultQueueSize,
		LogLevel:              "info",
	}
}

// ParseConfig merges YAML data over the defaults, then applies environment
// overrides and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config YAML")
	}
	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML file, see ParseConfig. Supports '~' expansion.
func LoadConfig(path string) (*Config, error) {
	if len(path) > 0 && path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get home directory to expand path")
		}
		path = filepath.Join(homeDir, path[1:])
	}

	// #nosec G304 -- path is supplied by the application.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", path)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config file: %s", path)
	}
	return cfg, nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.MaxChainedTransitions == 0 {
		return errors.New("max_chained_transitions must be greater than 0")
	}
	if c.QueueSize <= 0 {
		return errors.Newf("queue_size must be greater than 0, got %d", c.QueueSize)
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

// Logger returns a text logger writing to w at the configured level
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.level()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewMachine constructs a machine with the configured bound, logging to
// stderr. opts are applied after the configured ones.
func (c *Config) NewMachine(initial *State, opts ...MachineOption) *Machine {
	all := append([]MachineOption{WithLogger(c.Logger(os.Stderr))}, opts...)
	return New(initial, c.MaxChainedTransitions, all...)
}

// RunnerOptions returns the runner options matching the configuration
func (c *Config) RunnerOptions() []RunnerOption {
	return []RunnerOption{WithQueueSize(c.QueueSize)}
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, errors.Wrapf(err, "invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

// applyEnvironmentOverrides lets environment variables take precedence over
// file and default values. Invalid values are logged and ignored.
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv(EnvMaxChainedTransitions); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
			Logger.Debug("overriding max chained transitions from environment", "envVar", EnvMaxChainedTransitions, "value", n)
			cfg.MaxChainedTransitions = uint32(n)
		} else {
			Logger.Warn("invalid environment variable ignored", "envVar", EnvMaxChainedTransitions, "value", v, "error", err)
		}
	}

	if v := os.Getenv(EnvQueueSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			Logger.Debug("overriding queue size from environment", "envVar", EnvQueueSize, "value", n)
			cfg.QueueSize = n
		} else {
			Logger.Warn("invalid environment variable ignored", "envVar", EnvQueueSize, "value", v, "error", err)
		}
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		Logger.Debug("overriding log level from environment", "envVar", EnvLogLevel, "value", v)
		cfg.LogLevel = v
	}
}
