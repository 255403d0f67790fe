package config

import (
	"os"
	"strings"
	"time"
)

const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

// RateLimit bounds how many RPC requests a single client may issue.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Auth configures bearer-token authentication in front of the RPC server.
type Auth struct {
	Enabled bool `toml:"Enabled"`
	// HMACSecretEnv names the environment variable holding the HS256 secret.
	HMACSecretEnv  string   `toml:"HMACSecretEnv"`
	Issuer         string   `toml:"Issuer"`
	Audience       string   `toml:"Audience"`
	OptionalPaths  []string `toml:"OptionalPaths"`
	AllowAnonymous bool     `toml:"AllowAnonymous"`
}

// HMACSecret resolves the configured secret from the environment.
func (a Auth) HMACSecret() string {
	if strings.TrimSpace(a.HMACSecretEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(a.HMACSecretEnv))
}

// Telemetry toggles metrics exposure and OTLP export.
type Telemetry struct {
	ServiceName    string            `toml:"ServiceName"`
	MetricsEnabled bool              `toml:"MetricsEnabled"`
	OTLPEndpoint   string            `toml:"OTLPEndpoint"`
	Insecure       bool              `toml:"Insecure"`
	Headers        map[string]string `toml:"Headers"`
}

// SignatureSkew returns the accepted distance between a signed call's
// timestamp and the node clock.
func (c *Config) SignatureSkew() time.Duration {
	return time.Duration(c.SignatureSkewSeconds) * time.Second
}

// ExpiryPollInterval returns how often the expiry watcher scans open requests.
func (c *Config) ExpiryPollInterval() time.Duration {
	return time.Duration(c.ExpiryPollSeconds) * time.Second
}
