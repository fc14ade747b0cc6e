// YAML/TOML config loader with CUE validation and environment overrides
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// LiveConfig selects the shared region.
type LiveConfig struct {
	Enabled      bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Name         string `yaml:"name" toml:"name" env:"NAME"`
	FallbackPath string `yaml:"fallback_path" toml:"fallback_path" env:"FALLBACK_PATH"`
	Size         int    `yaml:"size" toml:"size" env:"SIZE"`
}

// LogConfig controls the durable session log.
type LogConfig struct {
	Enabled           bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Persistent        bool   `yaml:"persistent" toml:"persistent" env:"PERSISTENT"`
	OutputDir         string `yaml:"output_dir" toml:"output_dir" env:"OUTPUT_DIR"`
	StallFlushSeconds int    `yaml:"stall_flush_seconds" toml:"stall_flush_seconds" env:"STALL_FLUSH_SECONDS"`
}

// StallAfter returns the stall guard interval.
func (l LogConfig) StallAfter() time.Duration {
	return time.Duration(l.StallFlushSeconds) * time.Second
}

// EventsConfig bounds the event accumulator.
type EventsConfig struct {
	FlagBudgetBytes int `yaml:"flag_budget_bytes" toml:"flag_budget_bytes" env:"FLAG_BUDGET_BYTES"`
}

// AdminConfig controls the HTTP admin server.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" toml:"addr" env:"ADDR"`
}

// CatalogConfig controls the SQLite session index.
type CatalogConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" toml:"path" env:"PATH"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"LEVEL"`
	Format string `yaml:"format" toml:"format" env:"FORMAT"`
}

// GreptimeConfig points replay output at a GreptimeDB instance.
type GreptimeConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint" env:"ENDPOINT"`
	Database string `yaml:"database" toml:"database" env:"DATABASE"`
	Table    string `yaml:"table" toml:"table" env:"TABLE"`
}

// Config is the root configuration of the recorder and its tools.
type Config struct {
	TickHz   int            `yaml:"tick_hz" toml:"tick_hz" env:"TUW_TICK_HZ"`
	Markers  []string       `yaml:"markers" toml:"markers" env:"TUW_MARKERS"`
	Live     LiveConfig     `yaml:"live" toml:"live" envPrefix:"TUW_LIVE_"`
	Log      LogConfig      `yaml:"log" toml:"log" envPrefix:"TUW_LOG_"`
	Events   EventsConfig   `yaml:"events" toml:"events" envPrefix:"TUW_EVENTS_"`
	Admin    AdminConfig    `yaml:"admin" toml:"admin" envPrefix:"TUW_ADMIN_"`
	Catalog  CatalogConfig  `yaml:"catalog" toml:"catalog" envPrefix:"TUW_CATALOG_"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging" envPrefix:"TUW_LOGGING_"`
	Greptime GreptimeConfig `yaml:"greptime" toml:"greptime" envPrefix:"GREPTIMEDB_"`
}

// MaxMarkers is the number of marker bits in the direction byte.
const MaxMarkers = 4

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		TickHz: 60,
		Live: LiveConfig{
			Enabled: true,
			Name:    "celeste_tuw",
			Size:    4096,
		},
		Log: LogConfig{
			Enabled:           true,
			Persistent:        true,
			OutputDir:         "tuw_logs",
			StallFlushSeconds: 60,
		},
		Events:  EventsConfig{FlagBudgetBytes: 60000},
		Admin:   AdminConfig{Addr: "127.0.0.1:8089"},
		Catalog: CatalogConfig{Path: "tuw_logs/catalog.db"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Greptime: GreptimeConfig{
			Database: "public",
			Table:    "tuw_frames",
		},
	}
}

// Load reads path (YAML or TOML by extension) over Default, validates it
// against the embedded schema and applies environment overrides. An empty
// path yields the defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		format := formatOf(path)
		if err := Validate(data, format); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := decode(data, format, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Format is a config file syntax.
type Format string

const (
	YAML Format = "yaml"
	TOML Format = "toml"
)

func formatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return TOML
	}
	return YAML
}

func decode(data []byte, format Format, v any) error {
	if format == TOML {
		return toml.Unmarshal(data, v)
	}
	return yaml.Unmarshal(data, v)
}

// Check validates the merged configuration, including values that came
// from the environment and never saw the schema.
func (c *Config) Check() error {
	if c.TickHz <= 0 {
		return fmt.Errorf("tick_hz must be positive, got %d", c.TickHz)
	}
	if len(c.Markers) > MaxMarkers {
		return fmt.Errorf("at most %d markers, got %d", MaxMarkers, len(c.Markers))
	}
	if c.Live.Size < 64 || c.Live.Size > 65536 {
		return fmt.Errorf("live.size %d out of range", c.Live.Size)
	}
	if c.Log.StallFlushSeconds <= 0 {
		return fmt.Errorf("log.stall_flush_seconds must be positive")
	}
	if c.Events.FlagBudgetBytes <= 0 || c.Events.FlagBudgetBytes > 65000 {
		return fmt.Errorf("events.flag_budget_bytes %d out of range", c.Events.FlagBudgetBytes)
	}
	return nil
}

// TickInterval returns the sampling period.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickHz)
}

// MarkerIndex returns the bit slot of a named marker.
func (c *Config) MarkerIndex(name string) (int, bool) {
	for i, m := range c.Markers {
		if m == name {
			return i, true
		}
	}
	return 0, false
}
