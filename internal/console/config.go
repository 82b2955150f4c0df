// Package console holds the top-level configuration aggregate for the
// tfconsole binary.
package console

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/telcoflow/console/internal/api"
	"github.com/telcoflow/console/internal/stream"
)

const (
	// DefaultConfigPath is the default configuration file location.
	DefaultConfigPath = "/etc/tfconsole/config.yaml"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultBufferCapacity is the default watch buffer size.
	DefaultBufferCapacity = 50

	// TokenEnvVar is the environment variable checked for the bearer token
	// when the config file carries none.
	TokenEnvVar = "TFCONSOLE_TOKEN"
)

// WatchConfig configures the live watch view.
type WatchConfig struct {
	// Topic is the default pipeline topic to watch.
	Topic string `yaml:"topic"`

	// BufferCapacity is the maximum number of events kept on screen.
	// Default: 50
	BufferCapacity int `yaml:"buffer_capacity"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *WatchConfig) ApplyDefaults() {
	if c.BufferCapacity == 0 {
		c.BufferCapacity = DefaultBufferCapacity
	}
}

// Validate checks that values are acceptable.
func (c *WatchConfig) Validate() error {
	if c.BufferCapacity <= 0 {
		return fmt.Errorf("console: config: buffer_capacity must be positive, got %d", c.BufferCapacity)
	}
	return nil
}

// Config is the top-level configuration for tfconsole. It aggregates all
// subsystem configurations and is populated from a YAML file via ParseConfig.
type Config struct {
	// LogLevel is the log level: "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// Token is the bearer token for the management gateway. When empty the
	// TFCONSOLE_TOKEN environment variable is consulted per call.
	Token string `yaml:"token"`

	API    api.Config    `yaml:"api"`
	Stream stream.Config `yaml:"stream"`
	Watch  WatchConfig   `yaml:"watch"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.API.ApplyDefaults()
	c.Stream.ApplyDefaults()
	c.Watch.ApplyDefaults()
}

// Validate checks that required fields are set and values are acceptable.
// Called after CLI flag overrides are applied, not by ParseConfig, so a
// missing config file plus an --api flag still works.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("console: config: invalid log_level %q", c.LogLevel)
	}
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	return c.Watch.Validate()
}

// TokenSource returns the token source for the gateway: the configured
// static token, or the environment variable when none is configured.
func (c *Config) TokenSource() api.TokenSource {
	if c.Token != "" {
		return api.StaticTokenSource(c.Token)
	}
	return api.EnvTokenSource(TokenEnvVar)
}

// ParseConfig reads a YAML configuration file and applies defaults. A file
// missing at the default path is not an error: the console can run entirely
// from flags.
func ParseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultConfigPath {
			var cfg Config
			cfg.ApplyDefaults()
			return &cfg, nil
		}
		return nil, fmt.Errorf("console: config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("console: config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}
