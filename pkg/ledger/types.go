package ledger

import (
	"context"
	"fmt"
	"io"
	"time"
)

// RecordKind distinguishes original decisions from human corrections.
type RecordKind string

const (
	// KindDecision is the record the pipeline appends for every decided
	// action. At most one exists per action ID.
	KindDecision RecordKind = "decision"

	// KindCorrection is a human-override record referencing the decision
	// it corrects. The original record is never modified.
	KindCorrection RecordKind = "correction"
)

// Valid reports whether the kind is a known record kind.
func (k RecordKind) Valid() bool {
	return k == KindDecision || k == KindCorrection
}

// Outcome values stamped on records at write time.
const (
	OutcomeApproved         = "approved"
	OutcomeRejected         = "rejected"
	OutcomePendingReview    = "pending_review"
	OutcomeApprovedOverride = "approved_override"
	OutcomeRejectedOverride = "rejected_override"
)

// CheckResult is one guardrail check outcome embedded in a record. The
// ledger keeps its own flat shape so stored records stay readable even if
// the engine's types move on.
type CheckResult struct {
	Check   string  `json:"check"`
	Verdict string  `json:"verdict"`
	Reason  string  `json:"reason,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// Record is one immutable audit entry describing a pipeline decision or a
// human correction. Once appended, every field is read-only; corrections
// are additional records carrying CorrectsSeq, never in-place edits.
type Record struct {
	// ID is a UUID assigned at append time.
	ID string `json:"id"`

	// Seq is the storage-assigned sequence number, strictly increasing
	// across all appends, never reused.
	Seq uint64 `json:"seq"`

	// Kind is decision or correction.
	Kind RecordKind `json:"kind"`

	// Action context, denormalized so records stand on their own.
	ActionID     string `json:"action_id"`
	SubjectID    string `json:"subject_id"`
	Channel      string `json:"channel"`
	ActionKind   string `json:"action_kind"`
	CampaignID   string `json:"campaign_id,omitempty"`
	ExperimentID string `json:"experiment_id,omitempty"`

	// VariantID is the assigned experiment variant, empty when the action
	// declared no experiment or the verdict skipped allocation.
	VariantID string `json:"variant_id,omitempty"`

	// Verdict is the aggregate guardrail verdict.
	Verdict string `json:"verdict"`

	// Results is the full guardrail result set for the action.
	Results []CheckResult `json:"results,omitempty"`

	// Outcome is the outcome-at-write-time (approved, rejected,
	// pending_review, approved_override, rejected_override).
	Outcome string `json:"outcome"`

	// HumanOverride marks correction records produced by Override.
	HumanOverride bool `json:"human_override"`

	// OverrideReason is the reviewer's non-empty justification.
	OverrideReason string `json:"override_reason,omitempty"`

	// CorrectsSeq references the corrected record; zero on decisions.
	CorrectsSeq uint64 `json:"corrects_seq,omitempty"`

	// PolicyVersion names the policy pack the decision ran against.
	PolicyVersion string `json:"policy_version,omitempty"`

	// CreatedAt is when the record was appended.
	CreatedAt time.Time `json:"created_at"`
}

// Query filter limits. QueryDefaultLimit applies when a query names none.
const (
	QueryDefaultLimit = 100
	QueryMaxLimit     = 10000
)

// Query defines filters for reading the ledger. Zero-valued fields are
// ignored. Results are always ordered by sequence number, ascending.
type Query struct {
	SubjectID    string     `json:"subject_id,omitempty"`
	ActionID     string     `json:"action_id,omitempty"`
	ExperimentID string     `json:"experiment_id,omitempty"`
	Verdict      string     `json:"verdict,omitempty"`
	Kind         RecordKind `json:"kind,omitempty"`

	// Since and Until bound CreatedAt, both inclusive.
	Since *time.Time `json:"since,omitempty"`
	Until *time.Time `json:"until,omitempty"`

	// Limit defaults to QueryDefaultLimit, capped at QueryMaxLimit.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Validate checks the query for usable values.
func (q *Query) Validate() error {
	if q.Limit < 0 {
		return NewQueryError(fmt.Errorf("limit must not be negative, got %d", q.Limit))
	}
	if q.Limit > QueryMaxLimit {
		return NewQueryError(fmt.Errorf("limit %d above maximum %d", q.Limit, QueryMaxLimit))
	}
	if q.Offset < 0 {
		return NewQueryError(fmt.Errorf("offset must not be negative, got %d", q.Offset))
	}
	if q.Kind != "" && !q.Kind.Valid() {
		return NewQueryError(fmt.Errorf("unknown record kind %q", q.Kind))
	}
	if q.Since != nil && q.Until != nil && q.Until.Before(*q.Since) {
		return NewQueryError(fmt.Errorf("until %s before since %s", q.Until, q.Since))
	}
	return nil
}

// EffectiveLimit resolves the limit against the defaults.
func (q *Query) EffectiveLimit() int {
	if q.Limit <= 0 {
		return QueryDefaultLimit
	}
	if q.Limit > QueryMaxLimit {
		return QueryMaxLimit
	}
	return q.Limit
}

// Storage is the append-only ledger contract. There is deliberately no
// update or delete: the interface itself carries the immutability
// guarantee, and retention is a collaborator concern outside this core.
//
// Implementations must be safe for concurrent use, must assign strictly
// increasing sequence numbers, and must make Append durable before
// returning.
type Storage interface {
	// Append writes one record, assigns its sequence number, and returns
	// it. A second decision record for an action ID already holding one
	// returns ErrDuplicateAction.
	Append(ctx context.Context, record *Record) (uint64, error)

	// Read returns records matching the query, ordered by seq ascending.
	Read(ctx context.Context, query *Query) ([]*Record, error)

	// Count returns the number of records matching the query.
	Count(ctx context.Context, query *Query) (int64, error)

	// GetBySeq returns the record with the given sequence number, or
	// ErrNotFound.
	GetBySeq(ctx context.Context, seq uint64) (*Record, error)

	// GetByActionID returns the decision record for the action, or
	// ErrNotFound. Corrections do not count; they are found through
	// GetCorrectionFor.
	GetByActionID(ctx context.Context, actionID string) (*Record, error)

	// GetCorrectionFor returns the correction record referencing the given
	// sequence number, or ErrNotFound.
	GetCorrectionFor(ctx context.Context, seq uint64) (*Record, error)

	// LastSeq returns the highest assigned sequence number, zero when the
	// ledger is empty. Health probes use it as a cheap liveness query.
	LastSeq(ctx context.Context) (uint64, error)

	// Close releases storage resources.
	Close() error
}

// Exporter writes query results in an interchange format for the
// analytics surface.
type Exporter interface {
	Export(ctx context.Context, records []*Record, w io.Writer) error
}
