package main

import (
	"context"
	"fmt"
	"time"

	"signalhouse/overture/pkg/api"
	"signalhouse/overture/pkg/cli"
	"signalhouse/overture/pkg/config"
	"signalhouse/overture/pkg/experiment"
	"signalhouse/overture/pkg/frequency"
	"signalhouse/overture/pkg/guardrail"
	"signalhouse/overture/pkg/pipeline"
	"signalhouse/overture/pkg/server"
	"signalhouse/overture/pkg/subject"
	"signalhouse/overture/pkg/telemetry/health"
	"signalhouse/overture/pkg/telemetry/logging"
	"signalhouse/overture/pkg/telemetry/metrics"
	"signalhouse/overture/pkg/telemetry/tracing"

	"github.com/spf13/cobra"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Overture decision server",
	Long: `Start the Overture decision server with the specified configuration.

The server listens on the configured address and evaluates proposed
marketing actions through the guardrail engine, experiment allocator,
and audit ledger.

Examples:
  # Start with default config
  overture run

  # Start with custom config
  overture run --config /etc/overture/config.yaml

  # Override listen address
  overture run --listen 0.0.0.0:8080

  # Validate config without starting server
  overture run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := logging.Setup(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Overture v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	// Policy pack. Startup fails when the initial load fails.
	mgr, err := loadPolicyManager(ctx, cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	pack, err := mgr.Current()
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Printf("✓ Policy pack loaded (%s)\n", pack.Version.Ref())

	if cfg.Policy.Watch {
		go func() {
			if err := mgr.Watch(ctx); err != nil {
				logger.Warn("policy watch stopped", "error", err)
			}
		}()
	}

	// Frequency journal. Without a sqlite path the tracker is ephemeral
	// and windows reset on restart.
	var freqStore frequency.Store
	if cfg.Frequency.SQLitePath != "" {
		store, err := frequency.NewSQLiteStore(&frequency.SQLiteStoreConfig{
			Path:               cfg.Frequency.SQLitePath,
			BusyTimeout:        cfg.Frequency.BusyTimeout,
			CheckpointInterval: cfg.Frequency.CheckpointInterval,
			Retention:          cfg.Frequency.Retention,
		}, logger)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to open frequency journal: %w", err))
		}
		defer store.Close()
		freqStore = store
	}
	tracker := frequency.NewTracker(&frequency.TrackerConfig{
		Retention:  cfg.Frequency.Retention,
		BucketSize: cfg.Frequency.BucketSize,
	}, freqStore, logger)
	if err := tracker.Restore(ctx); err != nil {
		logger.Warn("frequency restore failed, starting with empty windows", "error", err)
	}
	limiter := frequency.NewRateLimiter()

	registry, err := buildRegistry(tracker, limiter)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	engine, err := guardrail.NewEngine(nil, registry, mgr, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Printf("✓ Guardrail engine ready (%d checks)\n", registry.Len())

	expStore, err := openExperimentStore(cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer expStore.Close()

	alloc, err := experiment.NewAllocator(expStore, mgr, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	if cfg.Experiments.Sweep {
		sched := experiment.NewScheduler(alloc, mgr, collector, logger)
		if err := sched.Start(ctx); err != nil {
			logger.Warn("evaluation sweep failed to start", "error", err)
		} else {
			defer sched.Stop()
			if next := sched.NextSweep(); next != nil {
				logger.Debug("evaluation sweep scheduled", "next_sweep", next)
			}
		}
	}

	auditStore, err := openLedger(cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer auditStore.Close()
	fmt.Println("✓ Audit ledger ready")

	subjects := subject.NewStaticProvider()
	if cfg.Subject.SnapshotsPath != "" {
		n, err := subjects.LoadFile(cfg.Subject.SnapshotsPath)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to load subject snapshots: %w", err))
		}
		fmt.Printf("✓ Subject snapshots loaded (%d)\n", n)
	}
	orch, err := pipeline.NewOrchestrator(&pipeline.OrchestratorConfig{
		SnapshotTimeout: cfg.Subject.SnapshotTimeout,
	}, subjects, engine, alloc, auditStore, collector, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	apiSurface, err := api.New(orch, alloc, auditStore, collector, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	checker := health.New(0)
	checker.Register(health.ProbeLedger, health.LedgerProbe(auditStore))
	checker.Register(health.ProbePolicy, health.PolicyProbe(mgr))
	checker.Register(health.ProbeExperiments, health.ExperimentProbe(expStore))

	srv := server.New(&cfg.Server, &cfg.Telemetry.Metrics, apiSurface, checker, collector, server.BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	}, logger)

	// SIGHUP reloads the configuration file and the policy pack without
	// a restart. Listen address changes still need one.
	go func() {
		reload := cli.WaitForReload()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reload:
				logger.Info("reload signal received")
				if err := config.ReloadConfig(cfgFile); err != nil {
					logger.Error("config reload failed", "error", err)
				}
				if err := mgr.Reload(ctx); err != nil {
					logger.Error("policy reload failed", "error", err)
				}
				if path := config.GetConfig().Subject.SnapshotsPath; path != "" {
					if n, err := subjects.LoadFile(path); err != nil {
						logger.Error("subject snapshots reload failed", "error", err)
					} else {
						logger.Info("subject snapshots reloaded", "count", n)
					}
				}
			}
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if collector.Enabled() {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Start blocks until SIGINT/SIGTERM, Stop, or a serve error.
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Server stopped")
	return nil
}
