package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks the loaded configuration for values the node cannot run
// with.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case BackendLevelDB, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("DBBackend: unsupported backend %q", c.DBBackend)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return fmt.Errorf("LogLevel: %w", err)
	}
	if c.SignatureSkewSeconds < 0 {
		return fmt.Errorf("SignatureSkewSeconds must not be negative")
	}
	if c.ExpiryPollSeconds < 0 {
		return fmt.Errorf("ExpiryPollSeconds must not be negative")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("RateLimit values must not be negative")
	}
	if c.Auth.Enabled && c.Auth.HMACSecret() == "" {
		return fmt.Errorf("Auth: enabled but %s is not set", c.Auth.HMACSecretEnv)
	}
	return nil
}
