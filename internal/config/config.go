package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/tablesync/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is applied to every key not covered by a legacy toggle,
// e.g. TABLESYNC_BUS_CAPACITY overrides bus.capacity.
const EnvPrefix = "TABLESYNC"

// Unprefixed toggles honoured alongside the prefixed form for the
// corresponding keys.
const (
	EnvWriterDisabled      = "WRITER_DISABLED"
	EnvHighFrequency       = "HIGH_FREQUENCY"
	EnvPeerWritersDisabled = "PEER_WRITERS_DISABLED"
)

// Config represents the top-level TOML structure.
type Config struct {
	Module  ModuleConfig  `toml:"module" mapstructure:"module"`
	Writer  WriterConfig  `toml:"writer" mapstructure:"writer"`
	Reader  ReaderConfig  `toml:"reader" mapstructure:"reader"`
	Peer    PeerConfig    `toml:"peer" mapstructure:"peer"`
	Bus     BusConfig     `toml:"bus" mapstructure:"bus"`
	Monitor MonitorConfig `toml:"monitor" mapstructure:"monitor"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	API     APIConfig     `toml:"api" mapstructure:"api"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
}

type ModuleConfig struct {
	SpawnTimeout time.Duration `toml:"spawn_timeout" mapstructure:"spawn_timeout"`
	IDStart      uint64        `toml:"id_start" mapstructure:"id_start"`
}

type WriterConfig struct {
	Disabled              bool          `toml:"disabled" mapstructure:"disabled"`
	HighFrequency         bool          `toml:"high_frequency" mapstructure:"high_frequency"`
	Interval              time.Duration `toml:"interval" mapstructure:"interval"`
	HighFrequencyInterval time.Duration `toml:"high_frequency_interval" mapstructure:"high_frequency_interval"`
	ProgressEvery         int           `toml:"progress_every" mapstructure:"progress_every"`
	Seed                  uint64        `toml:"seed" mapstructure:"seed"`
}

type ReaderConfig struct {
	PollInterval time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	YieldEvery   int           `toml:"yield_every" mapstructure:"yield_every"`
}

type PeerConfig struct {
	Disabled              bool          `toml:"disabled" mapstructure:"disabled"`
	HighFrequency         bool          `toml:"high_frequency" mapstructure:"high_frequency"`
	Interval              time.Duration `toml:"interval" mapstructure:"interval"`
	HighFrequencyInterval time.Duration `toml:"high_frequency_interval" mapstructure:"high_frequency_interval"`
}

type BusConfig struct {
	Capacity int `toml:"capacity" mapstructure:"capacity"`
}

type MonitorConfig struct {
	Interval          time.Duration `toml:"interval" mapstructure:"interval"`
	DropWarnThreshold uint64        `toml:"drop_warn_threshold" mapstructure:"drop_warn_threshold"`
	ProcessUsage      bool          `toml:"process_usage" mapstructure:"process_usage"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	TimeStamps bool   `toml:"timestamps" mapstructure:"timestamps"`
	Source     bool   `toml:"source" mapstructure:"source"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	Path       string `toml:"path" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type MetricsConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

type APIConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// HistoryConfig lists export sinks by DSN (sqlite path, postgres:// or clickhouse://).
type HistoryConfig struct {
	Enabled      bool     `toml:"enabled" mapstructure:"enabled"`
	Sinks        []string `toml:"sinks" mapstructure:"sinks"`
	QueueSize    int      `toml:"queue_size" mapstructure:"queue_size"`
	Observations bool     `toml:"observations" mapstructure:"observations"`
}

var (
	ErrInvalidInterval = errors.New("interval must be positive")
	ErrInvalidCapacity = errors.New("capacity must be positive")
	ErrInvalidFormat   = errors.New("unknown log format")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("module.spawn_timeout", "2s")
	v.SetDefault("module.id_start", 8000)

	v.SetDefault("writer.disabled", false)
	v.SetDefault("writer.high_frequency", false)
	v.SetDefault("writer.interval", "150ms")
	v.SetDefault("writer.high_frequency_interval", "15ms")
	v.SetDefault("writer.progress_every", 50)
	v.SetDefault("writer.seed", 42)

	v.SetDefault("reader.poll_interval", "2ms")
	v.SetDefault("reader.yield_every", 10)

	v.SetDefault("peer.disabled", false)
	v.SetDefault("peer.high_frequency", false)
	v.SetDefault("peer.interval", "200ms")
	v.SetDefault("peer.high_frequency_interval", "25ms")

	v.SetDefault("bus.capacity", 1024)

	v.SetDefault("monitor.interval", "10s")
	v.SetDefault("monitor.drop_warn_threshold", 100)
	v.SetDefault("monitor.process_usage", false)

	v.SetDefault("log.level", string(logger.LevelInfo))
	v.SetDefault("log.format", string(logger.FormatText))
	v.SetDefault("log.color", false)
	v.SetDefault("log.timestamps", true)
	v.SetDefault("log.source", false)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.path", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("metrics.listen", "")

	v.SetDefault("api.listen", "")
	v.SetDefault("api.base_path", "/api")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.sinks", []string{})
	v.SetDefault("history.queue_size", 1024)
	v.SetDefault("history.observations", false)
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	binds := []struct {
		key  string
		envs []string
	}{
		{"writer.disabled", []string{EnvPrefix + "_WRITER_DISABLED", EnvWriterDisabled}},
		{"writer.high_frequency", []string{EnvPrefix + "_WRITER_HIGH_FREQUENCY", EnvHighFrequency}},
		{"peer.disabled", []string{EnvPrefix + "_PEER_DISABLED", EnvPeerWritersDisabled}},
		{"peer.high_frequency", []string{EnvPrefix + "_PEER_HIGH_FREQUENCY", EnvHighFrequency}},
	}
	for _, b := range binds {
		args := append([]string{b.key}, b.envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", b.key, err)
		}
	}
	return nil
}

// Load reads defaults, the optional TOML file at path and environment
// overrides, then validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(filepath.Clean(path))
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := bindEnv(v); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects non-positive intervals and capacities.
func (c *Config) Validate() error {
	intervals := []struct {
		name string
		d    time.Duration
	}{
		{"module.spawn_timeout", c.Module.SpawnTimeout},
		{"writer.interval", c.Writer.Interval},
		{"writer.high_frequency_interval", c.Writer.HighFrequencyInterval},
		{"reader.poll_interval", c.Reader.PollInterval},
		{"peer.interval", c.Peer.Interval},
		{"peer.high_frequency_interval", c.Peer.HighFrequencyInterval},
		{"monitor.interval", c.Monitor.Interval},
	}
	for _, it := range intervals {
		if it.d <= 0 {
			return fmt.Errorf("%s=%s: %w", it.name, it.d, ErrInvalidInterval)
		}
	}
	if c.Bus.Capacity <= 0 {
		return fmt.Errorf("bus.capacity=%d: %w", c.Bus.Capacity, ErrInvalidCapacity)
	}
	if c.History.Enabled && c.History.QueueSize <= 0 {
		return fmt.Errorf("history.queue_size=%d: %w", c.History.QueueSize, ErrInvalidCapacity)
	}
	if c.Writer.ProgressEvery <= 0 {
		c.Writer.ProgressEvery = 50
	}
	if c.Reader.YieldEvery <= 0 {
		c.Reader.YieldEvery = 10
	}
	switch logger.Format(strings.ToLower(c.Log.Format)) {
	case logger.FormatText, logger.FormatJSON:
	default:
		return fmt.Errorf("log.format=%q: %w", c.Log.Format, ErrInvalidFormat)
	}
	return nil
}

// LoggerConfig maps the log section onto logger.Config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      logger.Level(strings.ToLower(c.Log.Level)),
			Format:     logger.Format(strings.ToLower(c.Log.Format)),
			Color:      c.Log.Color,
			TimeStamps: c.Log.TimeStamps,
			Source:     c.Log.Source,
		},
		File: logger.FileConfig{
			Dir:        c.Log.Dir,
			Path:       c.Log.Path,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}
