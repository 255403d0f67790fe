package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	// DBBackend selects the state store: leveldb, bolt or memory.
	DBBackend    string `toml:"DBBackend"`
	EventLogPath string `toml:"EventLogPath"`
	GenesisFile  string `toml:"GenesisFile"`
	Environment  string `toml:"Environment"`
	LogLevel     string `toml:"LogLevel"`
	LogFile      string `toml:"LogFile"`
	// RequireSignatures rejects state-changing RPC calls without a valid
	// caller signature. Disable only for local development.
	RequireSignatures    bool  `toml:"RequireSignatures"`
	SignatureSkewSeconds int64 `toml:"SignatureSkewSeconds"`
	ExpiryPollSeconds    int64 `toml:"ExpiryPollSeconds"`

	RateLimit RateLimit `toml:"RateLimit"`
	Auth      Auth      `toml:"Auth"`
	Telemetry Telemetry `toml:"Telemetry"`
}

// Load loads the configuration from the given path, writing a default file
// first when none exists. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ListenAddress:        ":8547",
		DataDir:              "./bounty-data",
		DBBackend:            BackendLevelDB,
		Environment:          "dev",
		LogLevel:             "info",
		RequireSignatures:    true,
		SignatureSkewSeconds: 300,
		ExpiryPollSeconds:    30,
		RateLimit: RateLimit{
			RequestsPerMinute: 600,
			Burst:             60,
		},
		Auth: Auth{
			HMACSecretEnv: "BOUNTY_JWT_SECRET",
		},
		Telemetry: Telemetry{
			ServiceName:    "bountyd",
			MetricsEnabled: true,
		},
	}
}

func (c *Config) applyDefaults() {
	defaults := Default()
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = defaults.ListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaults.DataDir
	}
	c.DBBackend = strings.ToLower(strings.TrimSpace(c.DBBackend))
	if c.DBBackend == "" {
		c.DBBackend = defaults.DBBackend
	}
	if strings.TrimSpace(c.EventLogPath) == "" {
		c.EventLogPath = filepath.Join(c.DataDir, "events.db")
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = defaults.Environment
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.SignatureSkewSeconds == 0 {
		c.SignatureSkewSeconds = defaults.SignatureSkewSeconds
	}
	if c.ExpiryPollSeconds == 0 {
		c.ExpiryPollSeconds = defaults.ExpiryPollSeconds
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = defaults.Telemetry.ServiceName
	}
	if strings.TrimSpace(c.Auth.HMACSecretEnv) == "" {
		c.Auth.HMACSecretEnv = defaults.Auth.HMACSecretEnv
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
