package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"signalhouse/overture/pkg/action"
	"signalhouse/overture/pkg/experiment"
	"signalhouse/overture/pkg/guardrail"
	"signalhouse/overture/pkg/ledger"
	"signalhouse/overture/pkg/subject"
	"signalhouse/overture/pkg/telemetry/metrics"
	"signalhouse/overture/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSnapshotTimeout bounds subject snapshot resolution.
const DefaultSnapshotTimeout = 2 * time.Second

// OrchestratorConfig contains configuration for the orchestrator.
type OrchestratorConfig struct {
	// SnapshotTimeout is the maximum time allowed for resolving the
	// subject snapshot. Past it the pipeline proceeds without one and
	// snapshot-dependent checks fail closed. Default: 2s.
	SnapshotTimeout time.Duration
}

// DefaultOrchestratorConfig returns the default orchestrator configuration.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		SnapshotTimeout: DefaultSnapshotTimeout,
	}
}

// Validate validates the orchestrator configuration.
func (c *OrchestratorConfig) Validate() error {
	if c.SnapshotTimeout <= 0 {
		return fmt.Errorf("snapshot timeout must be positive, got %v", c.SnapshotTimeout)
	}
	return nil
}

// Orchestrator is the composition root of the decision path. It owns no
// policy of its own; it sequences the collaborators and upholds the
// idempotency, serialization, and always-audited guarantees.
type Orchestrator struct {
	config    *OrchestratorConfig
	subjects  subject.Provider
	engine    *guardrail.Engine
	allocator *experiment.Allocator
	store     ledger.Storage
	collector *metrics.Collector
	logger    *slog.Logger
	tracer    trace.Tracer

	actionLocks  *keyedMutex
	subjectLocks *keyedMutex
}

// NewOrchestrator creates an orchestrator. A nil config uses defaults; a nil
// collector records nothing.
func NewOrchestrator(
	config *OrchestratorConfig,
	subjects subject.Provider,
	engine *guardrail.Engine,
	allocator *experiment.Allocator,
	store ledger.Storage,
	collector *metrics.Collector,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if config == nil {
		config = DefaultOrchestratorConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if subjects == nil {
		return nil, errors.New("subject provider cannot be nil")
	}
	if engine == nil {
		return nil, errors.New("guardrail engine cannot be nil")
	}
	if allocator == nil {
		return nil, errors.New("experiment allocator cannot be nil")
	}
	if store == nil {
		return nil, errors.New("ledger storage cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		config:       config,
		subjects:     subjects,
		engine:       engine,
		allocator:    allocator,
		store:        store,
		collector:    collector,
		logger:       logger.With("component", "pipeline"),
		tracer:       otel.Tracer("signalhouse/overture/pkg/pipeline"),
		actionLocks:  newKeyedMutex(),
		subjectLocks: newKeyedMutex(),
	}, nil
}

// Decide runs one proposed action through the pipeline and returns its
// outcome. Rejections and escalations are outcomes, not errors; the error
// return covers malformed input, caller cancellation before any side
// effect, and system faults per the package error taxonomy.
//
// Decide is idempotent by action ID: a repeated or concurrent invocation
// for an already-decided action replays the recorded outcome without
// re-running guardrails or consuming frequency slots.
func (o *Orchestrator) Decide(ctx context.Context, act *action.ProposedAction) (outcome *Outcome, err error) {
	if act == nil {
		return nil, errors.New("action cannot be nil")
	}
	// Malformed input is a caller bug; it never entered the pipeline and
	// leaves no audit record.
	if err := act.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	o.collector.IncDecisionsInFlight()
	defer o.collector.DecDecisionsInFlight()

	ctx, span := o.tracer.Start(ctx, "pipeline.decide", trace.WithAttributes(
		tracing.AttrActionID.String(act.ID),
		tracing.AttrSubjectID.String(act.SubjectID),
		tracing.AttrChannel.String(string(act.Channel)),
		tracing.AttrActionKind.String(string(act.Kind)),
	))
	defer func() {
		if err != nil {
			tracing.SetError(span, err)
		}
		span.End()
	}()

	// Idempotency fast path, lock-free for the common repeated call.
	if existing, err := o.store.GetByActionID(ctx, act.ID); err == nil {
		return o.replay(ctx, existing, start)
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, NewTransientError("reading ledger", err)
	}

	// Serialize in-flight duplicates of this action, then re-check: the
	// duplicate that held the lock first may have decided already.
	unlockAction := o.actionLocks.Lock(act.ID)
	defer unlockAction()

	if existing, err := o.store.GetByActionID(ctx, act.ID); err == nil {
		return o.replay(ctx, existing, start)
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, NewTransientError("reading ledger", err)
	}

	// One subject decides one action at a time; other subjects proceed.
	unlockSubject := o.subjectLocks.Lock(act.SubjectID)
	defer unlockSubject()

	// Last exit before side effects: a caller that canceled while waiting
	// on the locks gets its context error, not a decision.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := o.resolveSnapshot(ctx, act.SubjectID)
	if err != nil {
		return nil, err
	}

	// Atomic section. From here to the append the context cannot cancel:
	// a consumed frequency slot or computed verdict is always audited.
	atomicCtx := context.WithoutCancel(ctx)

	evalCtx, evalSpan := o.tracer.Start(atomicCtx, "guardrail.evaluate")
	eval, err := o.engine.Evaluate(evalCtx, act, snap)
	if err != nil {
		// The engine errors only before running any check.
		tracing.SetError(evalSpan, err)
		evalSpan.End()
		return nil, NewTransientError("evaluating guardrails", err)
	}
	evalSpan.SetAttributes(
		tracing.AttrVerdict.String(string(eval.Verdict)),
		tracing.AttrPolicyVersion.String(eval.PolicyVersion),
	)
	evalSpan.End()

	for _, r := range eval.Results {
		o.collector.RecordGuardrailResult(r.Check, string(r.Verdict), r.Elapsed,
			r.Reason == guardrail.ReasonUnavailable)
	}

	var variantID string
	if act.ExperimentID != "" && eval.Verdict != guardrail.VerdictRejected {
		variantID, err = o.assignVariant(atomicCtx, act)
		if err != nil {
			return nil, err
		}
		if variantID != "" {
			o.collector.RecordAssignment(act.ExperimentID, variantID)
			span.SetAttributes(tracing.AttrVariantID.String(variantID))
		}
	}

	record := &ledger.Record{
		Kind:          ledger.KindDecision,
		ActionID:      act.ID,
		SubjectID:     act.SubjectID,
		Channel:       string(act.Channel),
		ActionKind:    string(act.Kind),
		CampaignID:    act.CampaignID,
		ExperimentID:  act.ExperimentID,
		VariantID:     variantID,
		Verdict:       string(eval.Verdict),
		Results:       checkResults(eval.Results),
		Outcome:       outcomeForVerdict(eval.Verdict),
		PolicyVersion: eval.PolicyVersion,
	}

	appendStart := time.Now()
	appendCtx, appendSpan := o.tracer.Start(atomicCtx, "ledger.append",
		trace.WithAttributes(tracing.AttrRecordKind.String(string(record.Kind))))
	seq, err := o.store.Append(appendCtx, record)
	if err != nil {
		tracing.SetError(appendSpan, err)
	}
	appendSpan.End()

	if errors.Is(err, ledger.ErrDuplicateAction) {
		// A concurrent process won the race past the backstop index; its
		// record is the decision.
		existing, readErr := o.store.GetByActionID(atomicCtx, act.ID)
		if readErr != nil {
			return nil, NewTransientError("reading concurrent decision", readErr)
		}
		return o.replay(ctx, existing, start)
	}
	if err != nil {
		// Retry-safe: the frequency slot consumed above may overcount,
		// which is the fail-closed side of the one-sided cap invariant.
		return nil, NewTransientError("appending audit record", err)
	}

	o.collector.RecordLedgerAppend(string(record.Kind), time.Since(appendStart), seq)
	o.collector.RecordDecision(string(eval.Verdict), string(act.Channel), string(act.Kind),
		time.Since(start), false)
	span.SetAttributes(
		tracing.AttrVerdict.String(string(eval.Verdict)),
		tracing.AttrLedgerSeq.Int64(int64(seq)),
	)

	o.logger.Info("action decided",
		"action_id", act.ID,
		"subject_id", act.SubjectID,
		"verdict", eval.Verdict,
		"variant_id", variantID,
		"seq", seq,
		"policy_version", eval.PolicyVersion,
	)

	return &Outcome{
		ActionID:  act.ID,
		Verdict:   eval.Verdict,
		VariantID: variantID,
		AuditSeq:  seq,
		Results:   record.Results,
		DecidedAt: record.CreatedAt,
	}, nil
}

// Override records a human correction for a rejected or escalated decision.
// The original record is never modified; the correction is a new record
// referencing it. Idempotent per target: a second override returns
// ErrAlreadyOverridden.
func (o *Orchestrator) Override(ctx context.Context, seq uint64, approve bool, reason string) (outcome *Outcome, err error) {
	if reason == "" {
		return nil, ErrEmptyOverrideReason
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.override",
		trace.WithAttributes(tracing.AttrLedgerSeq.Int64(int64(seq))))
	defer func() {
		if err != nil {
			tracing.SetError(span, err)
		}
		span.End()
	}()

	target, err := o.store.GetBySeq(ctx, seq)
	if err != nil {
		return nil, err
	}
	if target.Kind != ledger.KindDecision {
		return nil, fmt.Errorf("%w: seq %d is a %s record", ErrNotOverridable, seq, target.Kind)
	}
	if target.Verdict != string(guardrail.VerdictRejected) &&
		target.Verdict != string(guardrail.VerdictPendingReview) {
		return nil, fmt.Errorf("%w: seq %d verdict is %s", ErrNotOverridable, seq, target.Verdict)
	}

	// Double-override races serialize on the original action.
	unlock := o.actionLocks.Lock(target.ActionID)
	defer unlock()

	if existing, err := o.store.GetCorrectionFor(ctx, seq); err == nil {
		return nil, fmt.Errorf("%w: seq %d corrected by seq %d", ErrAlreadyOverridden, seq, existing.Seq)
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, NewTransientError("reading corrections", err)
	}

	verdict := guardrail.VerdictApproved
	recOutcome := ledger.OutcomeApprovedOverride
	if !approve {
		verdict = guardrail.VerdictRejected
		recOutcome = ledger.OutcomeRejectedOverride
	}

	correction := &ledger.Record{
		Kind:           ledger.KindCorrection,
		ActionID:       target.ActionID,
		SubjectID:      target.SubjectID,
		Channel:        target.Channel,
		ActionKind:     target.ActionKind,
		CampaignID:     target.CampaignID,
		ExperimentID:   target.ExperimentID,
		VariantID:      target.VariantID,
		Verdict:        string(verdict),
		Results:        target.Results,
		Outcome:        recOutcome,
		HumanOverride:  true,
		OverrideReason: reason,
		CorrectsSeq:    target.Seq,
		PolicyVersion:  target.PolicyVersion,
	}

	appendStart := time.Now()
	appendCtx, appendSpan := o.tracer.Start(ctx, "ledger.append",
		trace.WithAttributes(tracing.AttrRecordKind.String(string(correction.Kind))))
	correctionSeq, err := o.store.Append(appendCtx, correction)
	if err != nil {
		tracing.SetError(appendSpan, err)
		appendSpan.End()
		return nil, NewTransientError("appending correction", err)
	}
	appendSpan.End()

	o.collector.RecordLedgerAppend(string(correction.Kind), time.Since(appendStart), correctionSeq)
	o.collector.RecordOverride(approve)
	span.SetAttributes(tracing.AttrVerdict.String(string(verdict)))

	o.logger.Info("decision overridden",
		"seq", seq,
		"correction_seq", correctionSeq,
		"action_id", target.ActionID,
		"approve", approve,
	)

	return &Outcome{
		ActionID:  target.ActionID,
		Verdict:   verdict,
		VariantID: target.VariantID,
		AuditSeq:  correctionSeq,
		Results:   correction.Results,
		DecidedAt: correction.CreatedAt,
	}, nil
}

// resolveSnapshot reads the subject snapshot under the configured timeout.
// A missing or failing snapshot does not abort the decision: the engine
// receives nil and snapshot-dependent checks fail closed. The one abort is
// caller cancellation, which arrives before any side effect.
func (o *Orchestrator) resolveSnapshot(ctx context.Context, subjectID string) (*subject.Snapshot, error) {
	snapCtx, cancel := context.WithTimeout(ctx, o.config.SnapshotTimeout)
	defer cancel()

	snapCtx, span := o.tracer.Start(snapCtx, "subject.snapshot")
	defer span.End()

	snap, err := o.subjects.Snapshot(snapCtx, subjectID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		tracing.SetError(span, err)
		o.logger.Warn("subject snapshot unavailable, checks fail closed",
			"subject_id", subjectID,
			"error", err,
		)
		return nil, nil
	}
	return snap, nil
}

// assignVariant allocates the action's experiment variant inside the atomic
// section. Unknown and closed experiments are valid no-variant outcomes;
// storage trouble degrades to no-variant rather than losing the audit
// record; a broken weight set is an invariant violation and fails the
// operation.
func (o *Orchestrator) assignVariant(ctx context.Context, act *action.ProposedAction) (string, error) {
	ctx, span := o.tracer.Start(ctx, "experiment.assign",
		trace.WithAttributes(tracing.AttrExperimentID.String(act.ExperimentID)))
	defer span.End()

	variantID, err := o.allocator.Assign(ctx, act.ExperimentID, act.SubjectID)
	if err == nil {
		span.SetAttributes(tracing.AttrVariantID.String(variantID))
		return variantID, nil
	}

	var invariant *experiment.InvariantError
	switch {
	case errors.Is(err, experiment.ErrNotFound), errors.Is(err, experiment.ErrExperimentClosed):
		o.logger.Debug("action not allocated",
			"action_id", act.ID,
			"experiment_id", act.ExperimentID,
			"reason", err,
		)
		return "", nil
	case errors.As(err, &invariant):
		tracing.SetError(span, err)
		o.logger.Error("experiment invariant violated during assignment",
			"action_id", act.ID,
			"experiment_id", act.ExperimentID,
			"error", err,
		)
		return "", NewInvariantViolationError(invariant.Error())
	default:
		o.logger.Warn("variant assignment degraded to no variant",
			"action_id", act.ID,
			"experiment_id", act.ExperimentID,
			"error", err,
		)
		return "", nil
	}
}

// replay converts an existing decision record back into an outcome.
func (o *Orchestrator) replay(ctx context.Context, record *ledger.Record, start time.Time) (*Outcome, error) {
	if record.Kind != ledger.KindDecision {
		// The decision index returned a correction; storage uniqueness is
		// broken and continuing would double-decide.
		err := NewInvariantViolationError(fmt.Sprintf(
			"action %s resolved to a %s record at seq %d", record.ActionID, record.Kind, record.Seq))
		o.logger.Error("replay refused", "action_id", record.ActionID, "error", err)
		return nil, err
	}

	o.collector.RecordDecision(record.Verdict, record.Channel, record.ActionKind,
		time.Since(start), true)
	trace.SpanFromContext(ctx).SetAttributes(
		tracing.AttrVerdict.String(record.Verdict),
		tracing.AttrReplayed.Bool(true),
	)

	return &Outcome{
		ActionID:  record.ActionID,
		Verdict:   guardrail.Verdict(record.Verdict),
		VariantID: record.VariantID,
		AuditSeq:  record.Seq,
		Results:   record.Results,
		Replayed:  true,
		DecidedAt: record.CreatedAt,
	}, nil
}
