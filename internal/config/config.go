// Package config loads the configuration of the forgewire serve command.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pthm/forgewire/lib/shared"
)

// Environment variables that override the file.
const (
	EnvSecret   = "FORGEWIRE_SECRET"
	EnvAddr     = "FORGEWIRE_ADDR"
	EnvStoreDSN = "FORGEWIRE_STORE_DSN"
)

// MinSecretLength is the minimum decoded length of a snapshot secret.
const MinSecretLength = 16

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverS3     = "s3"
)

// Config holds all serve settings.
type Config struct {
	Addr string `yaml:"addr"`

	// Secret signs snapshots. Hex encoded.
	Secret string `yaml:"secret"`
	// PreviousSecrets still verify snapshots during key rotation.
	PreviousSecrets []string `yaml:"previous_secrets,omitempty"`

	// Prefix is where the action endpoint is mounted.
	Prefix string `yaml:"prefix"`

	Shared SharedConfig `yaml:"shared"`

	ShutdownTimeout string `yaml:"shutdown_timeout"`
	Debug           bool   `yaml:"debug"`
}

// SharedConfig configures the shared-state broker.
type SharedConfig struct {
	Driver      string `yaml:"driver"` // memory, sqlite, redis, s3
	DSN         string `yaml:"dsn"`    // file path, redis URL or bucket[/prefix]
	Consistency string `yaml:"consistency"`

	// S3 only.
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`

	// Redis only.
	KeyPrefix string `yaml:"key_prefix"`
	TTL       string `yaml:"ttl"`
}

// DefaultConfig returns the defaults used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Addr:   ":8080",
		Prefix: "/_wire/",
		Shared: SharedConfig{
			Driver:      DriverMemory,
			Consistency: shared.LastWriterWins.String(),
			Region:      "us-east-1",
			KeyPrefix:   "forgewire:",
		},
		ShutdownTimeout: "10s",
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvSecret); v != "" {
		c.Secret = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(EnvStoreDSN); v != "" {
		c.Shared.DSN = v
	}
}

// Validate reports the first configuration problem.
func (c *Config) Validate() error {
	if _, err := c.Keys(); err != nil {
		return err
	}
	if _, err := c.Consistency(); err != nil {
		return err
	}
	switch c.Shared.Driver {
	case DriverMemory:
	case DriverSQLite, DriverRedis, DriverS3:
		if c.Shared.DSN == "" {
			return fmt.Errorf("shared.dsn is required for driver %q (or set %s)", c.Shared.Driver, EnvStoreDSN)
		}
	default:
		return fmt.Errorf("invalid shared.driver %q (valid: memory, sqlite, redis, s3)", c.Shared.Driver)
	}
	if c.Shared.Driver == DriverS3 {
		if cons, _ := c.Consistency(); cons == shared.CompareAndSwap {
			return errors.New("driver s3 only supports last-writer-wins consistency")
		}
	}
	for _, d := range []string{c.ShutdownTimeout, c.Shared.TTL} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid duration %q: %w", d, err)
		}
	}
	return nil
}

// Keys decodes the current secret followed by the previous ones.
func (c *Config) Keys() ([][]byte, error) {
	if c.Secret == "" {
		return nil, fmt.Errorf("secret not configured (set %s or run forgewire keygen)", EnvSecret)
	}
	all := append([]string{c.Secret}, c.PreviousSecrets...)
	keys := make([][]byte, 0, len(all))
	for i, s := range all {
		key, err := hex.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("secret %d is not hex: %w", i, err)
		}
		if len(key) < MinSecretLength {
			return nil, fmt.Errorf("secret %d is %d bytes, want at least %d", i, len(key), MinSecretLength)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Consistency parses Shared.Consistency.
func (c *Config) Consistency() (shared.Consistency, error) {
	return shared.ParseConsistency(c.Shared.Consistency)
}

// GetShutdownTimeout returns the graceful shutdown window.
func (c *Config) GetShutdownTimeout() time.Duration {
	if d, err := time.ParseDuration(c.ShutdownTimeout); err == nil {
		return d
	}
	return 10 * time.Second
}

// GetTTL returns the Redis key TTL, zero for none.
func (c *SharedConfig) GetTTL() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}
