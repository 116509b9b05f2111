// Package config loads leafline settings.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// LEAFLINE_* environment variables. The result is checked against an
// embedded CUE schema before use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/leafline/internal/usage"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LEAFLINE_"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Config is the full process configuration.
type Config struct {
	DatabasePath string `yaml:"database_path" json:"database_path" env:"DATABASE_PATH"`
	Backend      string `yaml:"backend" json:"backend" env:"BACKEND"`
	LogLevel     string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`
	LogFormat    string `yaml:"log_format" json:"log_format" env:"LOG_FORMAT"`
	MetricsAddr  string `yaml:"metrics_addr" json:"metrics_addr" env:"METRICS_ADDR"`
	Timezone     string `yaml:"timezone" json:"timezone" env:"TIMEZONE"` // IANA name; empty means local time

	Remote Remote `yaml:"remote" json:"remote" envPrefix:"REMOTE_"`
	Usage  Usage  `yaml:"usage" json:"usage" envPrefix:"USAGE_"`
	Sync   Sync   `yaml:"sync" json:"sync" envPrefix:"SYNC_"`
	Probe  Probe  `yaml:"probe" json:"probe" envPrefix:"PROBE_"`
}

// Remote configures the REST client.
type Remote struct {
	URL          string        `yaml:"url" json:"url" env:"URL"`
	APIKey       string        `yaml:"api_key" json:"api_key" env:"API_KEY"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	AllowedHosts []string      `yaml:"allowed_hosts" json:"allowed_hosts,omitempty" env:"ALLOWED_HOSTS" envSeparator:","`
}

// Usage configures the daily budget.
type Usage struct {
	DailyLimit    float64            `yaml:"daily_limit" json:"daily_limit" env:"DAILY_LIMIT"`
	WarningRatio  float64            `yaml:"warning_ratio" json:"warning_ratio" env:"WARNING_RATIO"`
	CriticalRatio float64            `yaml:"critical_ratio" json:"critical_ratio" env:"CRITICAL_RATIO"`
	Costs         map[string]float64 `yaml:"costs" json:"costs,omitempty" env:"COSTS"` // e.g. get_scans:2,save_scan:1.5
}

// Sync configures queue replay.
type Sync struct {
	Schedule   string  `yaml:"schedule" json:"schedule" env:"SCHEDULE"`
	DeadLetter bool    `yaml:"dead_letter" json:"dead_letter" env:"DEAD_LETTER"`
	RateLimit  float64 `yaml:"rate_limit" json:"rate_limit" env:"RATE_LIMIT"` // Replays per second, 0 = unpaced
	Burst      int     `yaml:"burst" json:"burst" env:"BURST"`
}

// Probe configures the connectivity health check.
type Probe struct {
	Interval time.Duration `yaml:"interval" json:"interval" env:"INTERVAL"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DatabasePath: "leafline.db",
		Backend:      BackendSQLite,
		LogLevel:     "info",
		LogFormat:    "text",
		MetricsAddr:  ":9464",
		Remote: Remote{
			Timeout: 10 * time.Second,
		},
		Usage: Usage{
			DailyLimit:    usage.DefaultDailyLimit,
			WarningRatio:  usage.DefaultWarningRatio,
			CriticalRatio: usage.DefaultCriticalRatio,
		},
		Sync: Sync{
			Schedule:   "@every 30s",
			DeadLetter: true,
			Burst:      1,
		},
		Probe: Probe{
			Interval: 15 * time.Second,
			Timeout:  5 * time.Second,
		},
	}
}

type loader struct {
	environ map[string]string
}

// LoadOption configures Load.
type LoadOption func(*loader)

// WithEnvironment reads variables from m instead of the process environment.
func WithEnvironment(m map[string]string) LoadOption {
	return func(l *loader) { l.environ = m }
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string, opts ...LoadOption) (Config, error) {
	l := &loader{}
	for _, opt := range opts {
		opt(l)
	}

	cfg := Default()
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	envOpts := env.Options{Prefix: EnvPrefix}
	if l.environ != nil {
		envOpts.Environment = l.environ
	}
	if err := env.ParseWithOptions(&cfg, envOpts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// readFile decodes YAML over cfg, rejecting unknown keys.
func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// UsageConfig converts the budget section for usage.NewGovernor.
func (c Config) UsageConfig() usage.Config {
	return usage.Config{
		DailyLimit:    c.Usage.DailyLimit,
		WarningRatio:  c.Usage.WarningRatio,
		CriticalRatio: c.Usage.CriticalRatio,
		Costs:         c.Usage.Costs,
	}
}
