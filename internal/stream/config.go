package stream

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	DefaultGuardDelay       = 200 * time.Millisecond
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
)

// Config holds streaming channel settings.
type Config struct {
	// GuardDelay is how long a connect attempt waits before dialing. A
	// second attempt started within the window supersedes the first, so a
	// rapid teardown-and-restart of the view opens one socket, not two.
	GuardDelay time.Duration `yaml:"guard_delay"`
	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// WriteTimeout bounds each outbound frame.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ApplyDefaults fills in default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.GuardDelay == 0 {
		c.GuardDelay = DefaultGuardDelay
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.GuardDelay < 0 {
		return fmt.Errorf("stream: config: GuardDelay must not be negative")
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("stream: config: HandshakeTimeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("stream: config: WriteTimeout must be positive")
	}
	return nil
}
