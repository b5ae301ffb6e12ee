// Package config loads and validates the datapub service configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RetryBackoffMode selects the delay growth strategy for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// Config represents the application configuration.
type Config struct {
	Forge   ForgeConfig   `yaml:"forge"`
	Workers WorkerConfig  `yaml:"workers"`
	Retry   RetryConfig   `yaml:"retry"`
	Build   BuildConfig   `yaml:"build"`
	NATS    NATSConfig    `yaml:"nats"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`

	Certificates CertificatesConfig `yaml:"certificates"`
}

// ForgeType identifies the kind of hosting backend.
type ForgeType string

const (
	ForgeGitHub ForgeType = "github"
	ForgeGit    ForgeType = "git"
)

// ForgeConfig configures the git hosting backend datasets are published to.
type ForgeConfig struct {
	Type    ForgeType `yaml:"type"`
	BaseURL string    `yaml:"base_url,omitempty"`
	APIURL  string    `yaml:"api_url,omitempty"`
	Token   string    `yaml:"token,omitempty"`
	Owner   string    `yaml:"owner"`
	Private bool      `yaml:"private,omitempty"`
}

// WorkerConfig bounds the publish job pool.
type WorkerConfig struct {
	Count     int `yaml:"count"`
	QueueSize int `yaml:"queue_size"`
}

// RetryConfig drives backoff for transient external failures.
type RetryConfig struct {
	Backoff      RetryBackoffMode `yaml:"backoff,omitempty"`
	InitialDelay string           `yaml:"initial_delay,omitempty"`
	MaxDelay     string           `yaml:"max_delay,omitempty"`
	MaxRetries   int              `yaml:"max_retries,omitempty"`
}

// InitialDelayOr parses initial_delay, falling back to def.
func (r RetryConfig) InitialDelayOr(def time.Duration) time.Duration {
	if d, err := time.ParseDuration(r.InitialDelay); err == nil && d > 0 {
		return d
	}
	return def
}

// MaxDelayOr parses max_delay, falling back to def.
func (r RetryConfig) MaxDelayOr(def time.Duration) time.Duration {
	if d, err := time.ParseDuration(r.MaxDelay); err == nil && d > 0 {
		return d
	}
	return def
}

// BuildConfig bounds the hosting provider's page-build polling.
type BuildConfig struct {
	PollInterval string `yaml:"poll_interval,omitempty"`
	PollDeadline string `yaml:"poll_deadline,omitempty"`
	SweepEvery   string `yaml:"sweep_every,omitempty"`
}

// PollInterval parsed with a 5s default.
func (b BuildConfig) Interval() time.Duration {
	if d, err := time.ParseDuration(b.PollInterval); err == nil && d > 0 {
		return d
	}
	return 5 * time.Second
}

// PollDeadline parsed with a 5m default.
func (b BuildConfig) Deadline() time.Duration {
	if d, err := time.ParseDuration(b.PollDeadline); err == nil && d > 0 {
		return d
	}
	return 5 * time.Minute
}

// SweepInterval parsed with a 10m default.
func (b BuildConfig) SweepInterval() time.Duration {
	if d, err := time.ParseDuration(b.SweepEvery); err == nil && d > 0 {
		return d
	}
	return 10 * time.Minute
}

// NATSConfig configures the notification sink.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}

// CertificatesConfig configures the open-data certificate service. When
// disabled, datasets publish without a certificate badge.
type CertificatesConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
}

// StoreConfig configures the error-record store.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// MetricsConfig configures Prometheus exposition.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // debug|info|warn|error
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env if present; absence is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables in the YAML content (token injection etc.)
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workers.Count <= 0 {
		c.Workers.Count = 2
	}
	if c.Workers.QueueSize <= 0 {
		c.Workers.QueueSize = 100
	}
	if c.Forge.Type == "" {
		c.Forge.Type = ForgeGitHub
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "datapub"
	}
	if c.Store.Path == "" {
		c.Store.Path = "datapub.db"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks cross-field invariants that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Forge.Type {
	case ForgeGitHub:
		if c.Forge.Token == "" {
			return fmt.Errorf("forge type %q requires a token", c.Forge.Type)
		}
	case ForgeGit:
		if c.Forge.BaseURL == "" {
			return fmt.Errorf("forge type %q requires a base_url", c.Forge.Type)
		}
	default:
		return fmt.Errorf("unknown forge type %q", c.Forge.Type)
	}
	if c.Forge.Owner == "" {
		return fmt.Errorf("forge owner is required")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats enabled but no url configured")
	}
	if c.Certificates.Enabled && c.Certificates.URL == "" {
		return fmt.Errorf("certificates enabled but no url configured")
	}
	return nil
}
