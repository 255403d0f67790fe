package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"bountyexchange/config"
	"bountyexchange/core"
	"bountyexchange/core/events"
	"bountyexchange/core/genesis"
	"bountyexchange/observability"
	"bountyexchange/observability/logging"
	telemetry "bountyexchange/observability/otel"
	"bountyexchange/rpc"
	"bountyexchange/rpc/middleware"
	"bountyexchange/services/expirywatch"
	"bountyexchange/storage"
	"bountyexchange/storage/eventlog"
)

const genesisPathEnv = "BOUNTY_GENESIS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides BOUNTY_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv("BOUNTY_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("bountyd", env, logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	if err := run(cfg, env, resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv), logger); err != nil {
		logger.Error("bountyd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, env, genesisPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := openDatabase(cfg.DBBackend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	eventLog, err := eventlog.Open(cfg.EventLogPath, logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("open event log: %w", err)
	}
	defer eventLog.Close()

	node, err := core.NewNode(db, logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("create node: %w", err)
	}
	defer node.Close()
	node.SetEmitter(events.Multi{eventLog, observability.Events()})

	if genesisPath != "" {
		spec, err := genesis.LoadGenesisSpec(genesisPath)
		if err != nil {
			return fmt.Errorf("load genesis: %w", err)
		}
		applied, err := node.ApplyGenesis(spec)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis checked",
			slog.String("path", genesisPath),
			slog.Bool("applied", applied),
			slog.Int("tokens", len(node.TokenList())))
	}

	server := rpc.NewServer(node, eventLog, rpc.ServerConfig{
		RequireSignatures: cfg.RequireSignatures,
		SignatureSkew:     cfg.SignatureSkew(),
		ServiceName:       cfg.Telemetry.ServiceName,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		LogRequests:       true,
		Auth: middleware.AuthConfig{
			Enabled:        cfg.Auth.Enabled,
			HMACSecret:     cfg.Auth.HMACSecret(),
			Issuer:         cfg.Auth.Issuer,
			Audience:       cfg.Auth.Audience,
			OptionalPaths:  cfg.Auth.OptionalPaths,
			AllowAnonymous: cfg.Auth.AllowAnonymous,
		},
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	}, logger)
	if !cfg.RequireSignatures {
		logger.Warn("signed calls disabled; callers are taken from params as-is")
	}

	watcher := expirywatch.New(node, observability.Expiry(), logger, cfg.ExpiryPollInterval())
	go watcher.Run(ctx)

	logger.Info("bountyd started",
		slog.String("listen", cfg.ListenAddress),
		slog.String("backend", cfg.DBBackend),
		slog.String("dataDir", cfg.DataDir))

	if err := server.Serve(ctx, cfg.ListenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("bountyd stopped")
	return nil
}

// openDatabase selects the state store named by backend.
func openDatabase(backend, dataDir string) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendBolt:
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(dataDir, "state.bolt"))
	case config.BackendLevelDB, "":
		return storage.NewLevelDB(filepath.Join(dataDir, "state"))
	default:
		return nil, fmt.Errorf("unknown database backend %q", backend)
	}
}

// resolveGenesisPath picks the genesis file: the flag wins, then the
// environment, then the config file.
func resolveGenesisPath(flagValue, configValue string, lookup func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(configValue)
}
