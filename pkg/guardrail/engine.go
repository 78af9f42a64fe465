package guardrail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"signalhouse/overture/pkg/action"
	"signalhouse/overture/pkg/policy"
	"signalhouse/overture/pkg/subject"
)

// PackProvider supplies the active policy pack. *policy.Manager satisfies
// it; tests use a fixed pack.
type PackProvider interface {
	Current() (*policy.Pack, error)
}

// Engine runs every registered check against one captured pack and
// aggregates the verdicts.
type Engine struct {
	config   *EngineConfig
	registry *Registry
	packs    PackProvider
	logger   *slog.Logger
}

// NewEngine creates a guardrail engine. A nil config uses defaults.
func NewEngine(config *EngineConfig, registry *Registry, packs PackProvider, logger *slog.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if packs == nil {
		return nil, errors.New("pack provider cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		config:   config,
		registry: registry,
		packs:    packs,
		logger:   logger.With("component", "guardrail"),
	}, nil
}

// Evaluate runs all checks against the action and snapshot. The pack is
// captured once at the start so every check in one evaluation sees the
// same limits even if a reload lands mid-flight.
//
// The returned error covers only inability to evaluate (no pack loaded);
// policy violations are data inside the Evaluation.
func (e *Engine) Evaluate(ctx context.Context, act *action.ProposedAction, snap *subject.Snapshot) (*Evaluation, error) {
	if act == nil {
		return nil, errors.New("action cannot be nil")
	}

	pack, err := e.packs.Current()
	if err != nil {
		return nil, fmt.Errorf("capturing policy pack: %w", err)
	}

	start := time.Now()
	in := &Input{
		Action:   act,
		Snapshot: snap,
		Pack:     pack,
	}

	checks := e.registry.Checks()
	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		results = append(results, e.runCheck(ctx, c, in))
	}

	eval := &Evaluation{
		Verdict:       Aggregate(results),
		Results:       results,
		PolicyVersion: pack.Version.Ref(),
		Elapsed:       time.Since(start),
	}

	e.logger.Info("action evaluated",
		"action_id", act.ID,
		"subject_id", act.SubjectID,
		"verdict", eval.Verdict,
		"checks", len(results),
		"policy_version", eval.PolicyVersion,
		"elapsed", eval.Elapsed,
	)

	return eval, nil
}

// runCheck executes one check under the per-check timeout. Panics and
// timeouts become FAIL/ReasonUnavailable results.
func (e *Engine) runCheck(ctx context.Context, c Check, in *Input) Result {
	checkCtx, cancel := context.WithTimeout(ctx, e.config.CheckTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("check panicked",
					"check", c.Name(),
					"action_id", in.Action.ID,
					"panic", r,
				)
				done <- Result{Verdict: CheckFail, Reason: ReasonUnavailable}
			}
		}()
		done <- c.Evaluate(checkCtx, in)
	}()

	select {
	case res := <-done:
		res.Check = c.Name()
		res.Elapsed = time.Since(start)
		return res
	case <-checkCtx.Done():
		e.logger.Warn("check timed out",
			"check", c.Name(),
			"action_id", in.Action.ID,
			"timeout", e.config.CheckTimeout,
		)
		return Result{
			Check:   c.Name(),
			Verdict: CheckFail,
			Reason:  ReasonUnavailable,
			Elapsed: time.Since(start),
		}
	}
}
