package console

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseConfig(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
token: tok123
api:
  base_url: https://admin.example.com
  request_timeout: 15s
watch:
  topic: billing.subscribers
  buffer_capacity: 100
`)

	cfg, err := ParseConfig(path)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.API.BaseURL != "https://admin.example.com" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.RequestTimeout != 15*time.Second {
		t.Errorf("API.RequestTimeout = %v, want 15s", cfg.API.RequestTimeout)
	}
	if cfg.Watch.Topic != "billing.subscribers" {
		t.Errorf("Watch.Topic = %q", cfg.Watch.Topic)
	}
	if cfg.Watch.BufferCapacity != 100 {
		t.Errorf("Watch.BufferCapacity = %d, want 100", cfg.Watch.BufferCapacity)
	}
	if got := cfg.TokenSource().Token(); got != "tok123" {
		t.Errorf("TokenSource = %q, want tok123", got)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseConfig_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://admin.example.com
`)

	cfg, err := ParseConfig(path)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.Watch.BufferCapacity != DefaultBufferCapacity {
		t.Errorf("Watch.BufferCapacity = %d, want %d", cfg.Watch.BufferCapacity, DefaultBufferCapacity)
	}
}

func TestParseConfig_MissingDefaultPathFallsBack(t *testing.T) {
	cfg, err := ParseConfig(DefaultConfigPath)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Watch.BufferCapacity != DefaultBufferCapacity {
		t.Errorf("Watch.BufferCapacity = %d, want defaults", cfg.Watch.BufferCapacity)
	}
}

func TestParseConfig_MissingExplicitPathFails(t *testing.T) {
	if _, err := ParseConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config path")
	}
}

func TestConfig_ValidateRejectsBadLogLevel(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	cfg.API.BaseURL = "https://admin.example.com"
	cfg.LogLevel = "loud"

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestConfig_TokenSourceFallsBackToEnv(t *testing.T) {
	t.Setenv(TokenEnvVar, "env-tok")
	var cfg Config
	cfg.ApplyDefaults()

	if got := cfg.TokenSource().Token(); got != "env-tok" {
		t.Errorf("TokenSource = %q, want env-tok", got)
	}
}
