// Package config holds the client configuration and its YAML and
// environment loaders.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/meridianid/bws-client/pkg/client"
	"github.com/meridianid/bws-client/pkg/endpoint"
	"github.com/meridianid/bws-client/pkg/pool"
	"github.com/meridianid/bws-client/pkg/region"
)

// Config is the top-level client configuration.
type Config struct {
	// ClientID and Key authenticate against the BWS service.
	ClientID string `yaml:"client_id"`
	Key      string `yaml:"key"`

	Region  RegionConfig  `yaml:"region"`
	Pool    PoolConfig    `yaml:"pool"`
	Retry   RetryConfig   `yaml:"retry"`
	Logging LoggingConfig `yaml:"logging"`
}

// RegionConfig holds regional endpoint settings.
type RegionConfig struct {
	Preferred             string        `yaml:"preferred"`
	Endpoint              string        `yaml:"endpoint"` // optional explicit endpoint override
	DataResidencyRequired bool          `yaml:"data_residency_required"`
	FailureThreshold      uint32        `yaml:"failure_threshold"`
	HealthCheckInterval   time.Duration `yaml:"health_check_interval"`
	ProbeTimeout          time.Duration `yaml:"probe_timeout"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxPerEndpoint int           `yaml:"max_per_endpoint"`
	QueueTimeout   time.Duration `yaml:"queue_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

// RetryConfig holds retry settings.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Default returns a configuration with all tunables at their defaults.
// Credentials are left empty and must be supplied by the caller.
func Default() *Config {
	return &Config{
		Region: RegionConfig{
			Preferred:           string(region.EU),
			FailureThreshold:    3,
			HealthCheckInterval: 30 * time.Second,
			ProbeTimeout:        5 * time.Second,
		},
		Pool: PoolConfig{
			MaxPerEndpoint: 5,
			QueueTimeout:   5 * time.Second,
			IdleTimeout:    5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    100 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a YAML file. Environment variables in the
// file content are expanded before parsing, and unset fields fall back to
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from BWS_* environment variables, loading a
// .env file first when one is present.
//
//	BWS_CLIENT_ID, BWS_KEY, BWS_REGION, BWS_ENDPOINT,
//	BWS_DATA_RESIDENCY_REQUIRED, BWS_MAX_RETRIES, BWS_LOG_LEVEL
func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	cfg.ClientID = os.Getenv("BWS_CLIENT_ID")
	cfg.Key = os.Getenv("BWS_KEY")

	if v := os.Getenv("BWS_REGION"); v != "" {
		cfg.Region.Preferred = v
	}
	if v := os.Getenv("BWS_ENDPOINT"); v != "" {
		cfg.Region.Endpoint = v
	}
	if v := os.Getenv("BWS_DATA_RESIDENCY_REQUIRED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid BWS_DATA_RESIDENCY_REQUIRED %q: %w", v, err)
		}
		cfg.Region.DataResidencyRequired = b
	}
	if v := os.Getenv("BWS_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid BWS_MAX_RETRIES %q: %w", v, err)
		}
		cfg.Retry.MaxAttempts = n
	}
	if v := os.Getenv("BWS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Region.Preferred == "" {
		c.Region.Preferred = def.Region.Preferred
	}
	if c.Region.FailureThreshold == 0 {
		c.Region.FailureThreshold = def.Region.FailureThreshold
	}
	if c.Region.HealthCheckInterval <= 0 {
		c.Region.HealthCheckInterval = def.Region.HealthCheckInterval
	}
	if c.Region.ProbeTimeout <= 0 {
		c.Region.ProbeTimeout = def.Region.ProbeTimeout
	}
	if c.Pool.MaxPerEndpoint <= 0 {
		c.Pool.MaxPerEndpoint = def.Pool.MaxPerEndpoint
	}
	if c.Pool.QueueTimeout <= 0 {
		c.Pool.QueueTimeout = def.Pool.QueueTimeout
	}
	if c.Pool.IdleTimeout <= 0 {
		c.Pool.IdleTimeout = def.Pool.IdleTimeout
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if c.Retry.InitialBackoff <= 0 {
		c.Retry.InitialBackoff = def.Retry.InitialBackoff
	}
	if c.Retry.MaxBackoff <= 0 {
		c.Retry.MaxBackoff = def.Retry.MaxBackoff
	}
	if c.Retry.BackoffMultiplier <= 1 {
		c.Retry.BackoffMultiplier = def.Retry.BackoffMultiplier
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

// Validate rejects configurations that cannot produce a working client.
// Region codes are matched case-insensitively.
func (c *Config) Validate() error {
	if _, ok := region.Parse(c.Region.Preferred); !ok {
		return fmt.Errorf("unknown preferred region %q", c.Region.Preferred)
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("max_backoff %s is below initial_backoff %s",
			c.Retry.MaxBackoff, c.Retry.InitialBackoff)
	}
	return nil
}

// EndpointConfig converts to the endpoint manager configuration. The
// preferred region is normalized to its canonical form; Validate guarantees
// it parses.
func (c *Config) EndpointConfig() endpoint.Config {
	preferred, _ := region.Parse(c.Region.Preferred)
	return endpoint.Config{
		PreferredRegion:       preferred,
		EndpointOverride:      c.Region.Endpoint,
		DataResidencyRequired: c.Region.DataResidencyRequired,
		FailureThreshold:      c.Region.FailureThreshold,
		HealthCheckInterval:   c.Region.HealthCheckInterval,
		ProbeTimeout:          c.Region.ProbeTimeout,
	}
}

// PoolSettings converts to the connection pool configuration.
func (c *Config) PoolSettings() pool.Config {
	return pool.Config{
		MaxPerEndpoint: c.Pool.MaxPerEndpoint,
		QueueTimeout:   c.Pool.QueueTimeout,
		IdleTimeout:    c.Pool.IdleTimeout,
	}
}

// RetrySettings converts to the executor retry configuration.
func (c *Config) RetrySettings() client.RetryConfig {
	return client.RetryConfig{
		MaxAttempts:       c.Retry.MaxAttempts,
		InitialBackoff:    c.Retry.InitialBackoff,
		MaxBackoff:        c.Retry.MaxBackoff,
		BackoffMultiplier: c.Retry.BackoffMultiplier,
	}
}
