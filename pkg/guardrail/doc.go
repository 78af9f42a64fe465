// Package guardrail evaluates proposed marketing actions against the active
// policy pack and aggregates per-check verdicts into a single decision.
//
// This is the core governance mechanism: every action entering the pipeline
// passes through the engine, which runs each registered check in order and
// folds the results into APPROVED, REJECTED, or PENDING_REVIEW.
//
// # Architecture
//
// The package has three layers:
//
//  1. Checks - self-contained verdict functions (frequency, rate, consent,
//     tone, spam, financial, engagement), each reading only the Input
//  2. Registry - the ordered, named set of checks the engine runs
//  3. Engine - captures the active pack, runs every check with a timeout,
//     and aggregates verdicts
//
// # Evaluation Flow
//
//	ProposedAction + Snapshot
//	       ↓
//	Engine (capture current pack)
//	       ↓
//	For each check in registration order:
//	  run with per-check timeout
//	  panic or timeout → FAIL "check unavailable"
//	       ↓
//	Aggregate: any FAIL → REJECTED
//	           else any ESCALATE → PENDING_REVIEW
//	           else APPROVED
//
// # Basic Usage
//
//	registry := guardrail.NewRegistry()
//	registry.Register(guardrail.NewConsentCheck())
//	registry.Register(guardrail.NewToneCheck())
//
//	engine, err := guardrail.NewEngine(nil, registry, manager, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eval, err := engine.Evaluate(ctx, act, snapshot)
//	if err != nil {
//	    return err
//	}
//	if eval.Verdict == guardrail.VerdictRejected {
//	    // surface eval.Results to the caller
//	}
//
// # Failure Semantics
//
// Checks fail closed, never open. A check that cannot complete (missing
// snapshot, missing required payload field, timeout, panic) returns FAIL
// with reason "check unavailable". Check failures are data carried in a
// Result, never Go errors: a buggy check can only reject an action, not
// crash the pipeline.
//
// # Thread Safety
//
// The engine is safe for concurrent use. Checks must be stateless or
// manage their own synchronization (the frequency check delegates to the
// tracker's per-key locking).
package guardrail
