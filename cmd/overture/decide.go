package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"signalhouse/overture/pkg/action"
	"signalhouse/overture/pkg/cli"
	"signalhouse/overture/pkg/experiment"
	"signalhouse/overture/pkg/frequency"
	"signalhouse/overture/pkg/guardrail"
	"signalhouse/overture/pkg/pipeline"
	"signalhouse/overture/pkg/policy"
	"signalhouse/overture/pkg/subject"

	"github.com/spf13/cobra"
)

var decideFlags struct {
	actionFile   string
	subjectFile  string
	policyPath   string
	failOnReject bool
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Run one decision through an in-process pipeline",
	Long: `Run a single proposed action through the full decision pipeline
without a server: guardrail checks, experiment assignment, and an
audit record, printed as JSON.

The action file is YAML or JSON by extension. Without --subject the
pipeline decides against a missing snapshot, so subject-dependent
checks fail closed the way they do for unknown subjects in production.
Frequency windows start empty; the server's journal is not consulted.

Without a config file everything runs in memory. With one, decisions
are audited to the configured ledger and replay applies.

Examples:
  # Test an action against the configured policy pack
  overture decide --action action.json

  # Provide the subject snapshot
  overture decide --action action.json --subject subject.json

  # Test a candidate pack before rollout
  overture decide --action action.json --policy ./packs/spring-launch

  # Exit non-zero unless approved, for CI gates
  overture decide --action action.json --fail-on-reject`,
	RunE: decideOnce,
}

func init() {
	rootCmd.AddCommand(decideCmd)

	decideCmd.Flags().StringVarP(&decideFlags.actionFile, "action", "a", "", "proposed action file (YAML or JSON, required)")
	decideCmd.Flags().StringVarP(&decideFlags.subjectFile, "subject", "s", "", "subject snapshot file (JSON)")
	decideCmd.Flags().StringVar(&decideFlags.policyPath, "policy", "", "pack file or directory overriding the configured source")
	decideCmd.Flags().BoolVar(&decideFlags.failOnReject, "fail-on-reject", false, "exit non-zero unless the action is approved")
	decideCmd.MarkFlagRequired("action")
}

func decideOnce(cmd *cobra.Command, args []string) error {
	cfg, fromFile, err := loadConfigOrDefaults()
	if err != nil {
		return err
	}
	if !fromFile {
		cfg.Ledger.Backend = "memory"
		cfg.Experiments.Backend = "memory"
	}

	logger := cliLogger()
	ctx := context.Background()

	var act action.ProposedAction
	if err := decodeFile(decideFlags.actionFile, &act); err != nil {
		return cli.NewCommandError("decide", fmt.Errorf("failed to read action: %w", err))
	}
	if act.RequestedAt.IsZero() {
		act.RequestedAt = time.Now()
	}

	var src policy.Source
	if decideFlags.policyPath != "" {
		src = policy.NewFileSource(decideFlags.policyPath, logger)
	} else {
		src, err = newPolicySource(cfg, logger)
		if err != nil {
			return cli.NewConfigError("policy.mode", err.Error())
		}
	}
	mgr := policy.NewManager(src, logger)
	if err := mgr.Reload(ctx); err != nil {
		return cli.NewCommandError("decide", err)
	}

	// Ephemeral tracker: one offline decision must not write send events
	// into the server's frequency journal.
	tracker := frequency.NewTracker(&frequency.TrackerConfig{
		Retention:  cfg.Frequency.Retention,
		BucketSize: cfg.Frequency.BucketSize,
	}, nil, logger)

	registry, err := buildRegistry(tracker, frequency.NewRateLimiter())
	if err != nil {
		return cli.NewCommandError("decide", err)
	}
	engine, err := guardrail.NewEngine(nil, registry, mgr, logger)
	if err != nil {
		return cli.NewCommandError("decide", err)
	}

	expStore, err := openExperimentStore(cfg, logger)
	if err != nil {
		return cli.NewCommandError("decide", err)
	}
	defer expStore.Close()

	alloc, err := experiment.NewAllocator(expStore, mgr, logger)
	if err != nil {
		return cli.NewCommandError("decide", err)
	}

	auditStore, err := openLedger(cfg, logger)
	if err != nil {
		return cli.NewCommandError("decide", err)
	}
	defer auditStore.Close()

	subjects := subject.NewStaticProvider()
	if decideFlags.subjectFile != "" {
		data, err := os.ReadFile(decideFlags.subjectFile)
		if err != nil {
			return cli.NewCommandError("decide", fmt.Errorf("failed to read subject: %w", err))
		}
		var snap subject.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return cli.NewCommandError("decide", fmt.Errorf("failed to parse subject: %w", err))
		}
		subjects.Put(&snap)
	}

	orch, err := pipeline.NewOrchestrator(&pipeline.OrchestratorConfig{
		SnapshotTimeout: cfg.Subject.SnapshotTimeout,
	}, subjects, engine, alloc, auditStore, nil, logger)
	if err != nil {
		return cli.NewCommandError("decide", err)
	}

	outcome, err := orch.Decide(ctx, &act)
	if err != nil {
		return cli.NewCommandError("decide", err)
	}

	if err := cli.WriteJSON(os.Stdout, outcome); err != nil {
		return cli.NewCommandError("decide", err)
	}

	if decideFlags.failOnReject {
		return outcome.Err()
	}
	return nil
}
