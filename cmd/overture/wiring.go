package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"signalhouse/overture/pkg/cli"
	"signalhouse/overture/pkg/config"
	"signalhouse/overture/pkg/experiment"
	"signalhouse/overture/pkg/frequency"
	"signalhouse/overture/pkg/guardrail"
	"signalhouse/overture/pkg/ledger"
	"signalhouse/overture/pkg/ledger/storage"
	"signalhouse/overture/pkg/policy"
	"signalhouse/overture/pkg/telemetry/logging"

	"gopkg.in/yaml.v3"
)

// loadConfig initializes the configuration singleton from --config and
// returns it.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	return config.GetConfig(), nil
}

// loadConfigOrDefaults is loadConfig for offline commands: when the
// config file does not exist the compiled defaults are used instead, so
// decide, ledger, and experiment work without a deployed config.
// fromFile reports whether a file was actually read; callers use it to
// downgrade to in-memory backends for purely offline runs.
func loadConfigOrDefaults() (cfg *config.Config, fromFile bool, err error) {
	if _, statErr := os.Stat(cfgFile); statErr != nil {
		if os.IsNotExist(statErr) {
			cfg = config.DefaultConfig()
			config.SetConfig(cfg)
			return cfg, false, nil
		}
		return nil, false, cli.NewConfigError("", fmt.Sprintf("failed to read config: %v", statErr))
	}
	cfg, err = loadConfig()
	return cfg, true, err
}

// cliLogger builds the logger for offline commands: text on stderr,
// warnings and above unless --verbose.
func cliLogger() *slog.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, Format: "text", Writer: os.Stderr})
	if err != nil {
		return slog.Default()
	}
	return logger
}

// decodeFile unmarshals a YAML or JSON document by file extension.
// Anything without a .yaml/.yml suffix is treated as JSON.
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}

// newPolicySource builds the pack source selected by policy.mode.
func newPolicySource(cfg *config.Config, logger *slog.Logger) (policy.Source, error) {
	switch cfg.Policy.Mode {
	case "git":
		return policy.NewGitSource(policy.GitConfig{
			Repository:   cfg.Policy.Git.Repository,
			Branch:       cfg.Policy.Git.Branch,
			Path:         cfg.Policy.Git.Path,
			LocalPath:    cfg.Policy.Git.LocalPath,
			PollInterval: cfg.Policy.Git.PollInterval,
			PullTimeout:  cfg.Policy.Git.PullTimeout,
			Token:        cfg.Policy.Git.Token,
		}, logger)
	case "file":
		return policy.NewFileSource(cfg.Policy.FilePath, logger), nil
	default:
		return nil, fmt.Errorf("unsupported policy mode: %s", cfg.Policy.Mode)
	}
}

// loadPolicyManager builds a manager over the configured source and
// performs the initial pack load. Startup fails when the first load
// fails; there is no pack to fall back to yet.
func loadPolicyManager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*policy.Manager, error) {
	src, err := newPolicySource(cfg, logger)
	if err != nil {
		return nil, err
	}
	mgr := policy.NewManager(src, logger)
	if err := mgr.Reload(ctx); err != nil {
		return nil, fmt.Errorf("failed to load policy pack: %w", err)
	}
	return mgr, nil
}

// buildRegistry registers the full check set against the given
// frequency collaborators.
func buildRegistry(tracker *frequency.Tracker, limiter *frequency.RateLimiter) (*guardrail.Registry, error) {
	registry := guardrail.NewRegistry()
	checks := []guardrail.Check{
		guardrail.NewConsentCheck(),
		guardrail.NewFrequencyCheck(tracker),
		guardrail.NewRateCheck(limiter),
		guardrail.NewToneCheck(),
		guardrail.NewSpamCheck(),
		guardrail.NewFinancialCheck(),
		guardrail.NewEngagementCheck(),
	}
	for _, c := range checks {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// openLedger opens the audit store selected by ledger.backend.
func openLedger(cfg *config.Config, logger *slog.Logger) (ledger.Storage, error) {
	switch cfg.Ledger.Backend {
	case "sqlite":
		return storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.Ledger.SQLitePath,
			MaxOpenConns: cfg.Ledger.MaxOpenConns,
			MaxIdleConns: cfg.Ledger.MaxIdleConns,
			BusyTimeout:  cfg.Ledger.BusyTimeout,
		}, logger)
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", cfg.Ledger.Backend)
	}
}

// openExperimentStore opens the assignment store selected by
// experiments.backend.
func openExperimentStore(cfg *config.Config, logger *slog.Logger) (experiment.Store, error) {
	switch cfg.Experiments.Backend {
	case "sqlite":
		return experiment.NewSQLiteStore(&experiment.SQLiteStoreConfig{
			Path:        cfg.Experiments.SQLitePath,
			BusyTimeout: cfg.Experiments.BusyTimeout,
		}, logger)
	case "memory":
		return experiment.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported experiments backend: %s", cfg.Experiments.Backend)
	}
}
