package pipeline

import (
	"time"

	"signalhouse/overture/pkg/guardrail"
	"signalhouse/overture/pkg/ledger"
)

// Outcome is what the pipeline decided for one action. Identical action IDs
// always observe identical outcomes, whether decided fresh or replayed.
type Outcome struct {
	// ActionID is the decided action's idempotency identifier.
	ActionID string `json:"action_id"`

	// Verdict is the aggregate guardrail verdict, or the human verdict for
	// outcomes produced by Override.
	Verdict guardrail.Verdict `json:"verdict"`

	// VariantID is the assigned experiment variant, empty when the action
	// declared no experiment or allocation was skipped.
	VariantID string `json:"variant_id,omitempty"`

	// AuditSeq is the sequence number of the audit record backing this
	// outcome. Always set: no outcome exists without a durable record.
	AuditSeq uint64 `json:"audit_seq"`

	// Results is the full guardrail result set, in the ledger's stored
	// shape so fresh and replayed outcomes look alike.
	Results []ledger.CheckResult `json:"results,omitempty"`

	// Replayed is true when the idempotency index short-circuited the
	// pipeline and this outcome was read back from the ledger.
	Replayed bool `json:"replayed,omitempty"`

	// DecidedAt is when the backing record was appended.
	DecidedAt time.Time `json:"decided_at"`
}

// Approved reports whether the action may proceed.
func (o *Outcome) Approved() bool {
	return o.Verdict == guardrail.VerdictApproved
}

// Err maps the outcome onto the error taxonomy: nil for approvals, a
// ReviewRequiredError for escalations, a PolicyRejectionError otherwise.
// Decide itself returns rejections as data; callers that need an error
// (CLI exit codes, delivery collaborators) derive one here.
func (o *Outcome) Err() error {
	switch o.Verdict {
	case guardrail.VerdictApproved:
		return nil
	case guardrail.VerdictPendingReview:
		return NewReviewRequiredError(o.ActionID, o.Results)
	default:
		return NewPolicyRejectionError(o.ActionID, o.Results)
	}
}

// checkResults flattens engine results into the ledger's stored shape.
// Elapsed stays behind; it is operational detail, not audit substance.
func checkResults(results []guardrail.Result) []ledger.CheckResult {
	out := make([]ledger.CheckResult, len(results))
	for i, r := range results {
		out[i] = ledger.CheckResult{
			Check:   r.Check,
			Verdict: string(r.Verdict),
			Reason:  r.Reason,
			Score:   r.Score,
		}
	}
	return out
}

// outcomeForVerdict maps a verdict onto the ledger's outcome-at-write-time
// vocabulary for decision records.
func outcomeForVerdict(v guardrail.Verdict) string {
	switch v {
	case guardrail.VerdictApproved:
		return ledger.OutcomeApproved
	case guardrail.VerdictPendingReview:
		return ledger.OutcomePendingReview
	default:
		return ledger.OutcomeRejected
	}
}
