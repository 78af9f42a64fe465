package guardrail

import (
	"context"
	"time"

	"signalhouse/overture/pkg/action"
	"signalhouse/overture/pkg/policy"
	"signalhouse/overture/pkg/subject"
)

// CheckVerdict is the outcome of a single check.
type CheckVerdict string

const (
	// CheckPass means the check found nothing objectionable.
	CheckPass CheckVerdict = "PASS"

	// CheckFail means the check found a hard policy violation.
	CheckFail CheckVerdict = "FAIL"

	// CheckEscalate means the check wants a human to look before the
	// action proceeds.
	CheckEscalate CheckVerdict = "ESCALATE"
)

// Verdict is the aggregated outcome of a full evaluation.
type Verdict string

const (
	// VerdictApproved means every check passed.
	VerdictApproved Verdict = "APPROVED"

	// VerdictRejected means at least one check failed.
	VerdictRejected Verdict = "REJECTED"

	// VerdictPendingReview means no check failed but at least one
	// escalated.
	VerdictPendingReview Verdict = "PENDING_REVIEW"
)

// ReasonUnavailable is the reason stamped on results for checks that could
// not complete: missing inputs, timeout, or panic. Unavailable checks fail
// closed.
const ReasonUnavailable = "check unavailable"

// Result is one check's verdict. Results are data, not errors; they travel
// into the audit record exactly as produced.
type Result struct {
	// Check is the registered name of the check.
	Check string `json:"check"`

	// Verdict is the check's outcome.
	Verdict CheckVerdict `json:"verdict"`

	// Reason explains FAIL and ESCALATE verdicts in one short sentence.
	Reason string `json:"reason,omitempty"`

	// Score is the check's 0.0-1.0 measurement where one applies
	// (tone, spam, financial, engagement), zero otherwise.
	Score float64 `json:"score,omitempty"`

	// Elapsed is how long the check ran. Stamped by the engine.
	Elapsed time.Duration `json:"elapsed,omitempty"`
}

// Input is everything a check may read. Checks never mutate it.
type Input struct {
	Action   *action.ProposedAction
	Snapshot *subject.Snapshot
	Pack     *policy.Pack
}

// Check evaluates one policy concern against an input.
//
// Evaluate must return within the engine's per-check timeout and must not
// return Go errors: anything that prevents a verdict is reported as
// FAIL/ReasonUnavailable. The engine stamps Check and Elapsed on the
// returned result.
type Check interface {
	// Name identifies the check in results, logs, and metrics.
	Name() string

	// Evaluate inspects the input and returns a verdict.
	Evaluate(ctx context.Context, in *Input) Result
}

// Evaluation is the engine's aggregated outcome for one action.
type Evaluation struct {
	// Verdict is the fold of all check verdicts.
	Verdict Verdict `json:"verdict"`

	// Results holds every check's result in registration order.
	Results []Result `json:"results"`

	// PolicyVersion references the pack the evaluation ran against.
	PolicyVersion string `json:"policy_version"`

	// Elapsed is the total evaluation time.
	Elapsed time.Duration `json:"elapsed"`
}

// Aggregate folds check results into a final verdict: any FAIL rejects,
// otherwise any ESCALATE requires review, otherwise approved. An empty
// result set rejects; nothing verified means nothing approved.
func Aggregate(results []Result) Verdict {
	if len(results) == 0 {
		return VerdictRejected
	}
	verdict := VerdictApproved
	for _, r := range results {
		switch r.Verdict {
		case CheckFail:
			return VerdictRejected
		case CheckEscalate:
			verdict = VerdictPendingReview
		}
	}
	return verdict
}
