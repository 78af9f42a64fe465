package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"signalhouse/overture/pkg/guardrail"
	"signalhouse/overture/pkg/ledger"
)

// Sentinel errors returned by Override preconditions.
var (
	// ErrEmptyOverrideReason rejects overrides without a justification;
	// the reason lands verbatim in the correction record.
	ErrEmptyOverrideReason = errors.New("override reason is required")

	// ErrNotOverridable marks targets outside the override surface:
	// corrections, and decisions that were approved.
	ErrNotOverridable = errors.New("record cannot be overridden")

	// ErrAlreadyOverridden marks decisions that already have a correction.
	ErrAlreadyOverridden = errors.New("record already corrected")
)

// PolicyRejectionError describes a guardrail rejection. It is data for the
// caller, not a system fault: Decide reports rejections inside the Outcome,
// and surfaces that need an error (CLI exit codes, collaborator
// integrations) derive this one from it.
type PolicyRejectionError struct {
	ActionID string
	Failing  []ledger.CheckResult
}

func (e *PolicyRejectionError) Error() string {
	if len(e.Failing) == 0 {
		return fmt.Sprintf("action %s rejected by policy", e.ActionID)
	}
	names := make([]string, len(e.Failing))
	for i, r := range e.Failing {
		names[i] = r.Check
	}
	return fmt.Sprintf("action %s rejected by policy: %s failed", e.ActionID, strings.Join(names, ", "))
}

// NewPolicyRejectionError creates a PolicyRejectionError carrying only the
// failing results.
func NewPolicyRejectionError(actionID string, results []ledger.CheckResult) *PolicyRejectionError {
	var failing []ledger.CheckResult
	for _, r := range results {
		if r.Verdict == string(guardrail.CheckFail) {
			failing = append(failing, r)
		}
	}
	return &PolicyRejectionError{ActionID: actionID, Failing: failing}
}

// ReviewRequiredError describes an escalated decision waiting on a human.
// Like PolicyRejectionError it is derived from an Outcome, not returned by
// Decide.
type ReviewRequiredError struct {
	ActionID   string
	Escalating []ledger.CheckResult
}

func (e *ReviewRequiredError) Error() string {
	if len(e.Escalating) == 0 {
		return fmt.Sprintf("action %s requires human review", e.ActionID)
	}
	names := make([]string, len(e.Escalating))
	for i, r := range e.Escalating {
		names[i] = r.Check
	}
	return fmt.Sprintf("action %s requires human review: %s escalated", e.ActionID, strings.Join(names, ", "))
}

// NewReviewRequiredError creates a ReviewRequiredError carrying only the
// escalating results.
func NewReviewRequiredError(actionID string, results []ledger.CheckResult) *ReviewRequiredError {
	var escalating []ledger.CheckResult
	for _, r := range results {
		if r.Verdict == string(guardrail.CheckEscalate) {
			escalating = append(escalating, r)
		}
	}
	return &ReviewRequiredError{ActionID: actionID, Escalating: escalating}
}

// TransientError marks a failure that is safe to retry with the same action
// ID: nothing was decided, or whatever was decided will replay through the
// idempotency index on the next attempt.
type TransientError struct {
	Operation string
	Cause     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient pipeline failure during %s: %v", e.Operation, e.Cause)
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// NewTransientError creates a TransientError.
func NewTransientError(operation string, cause error) *TransientError {
	return &TransientError{Operation: operation, Cause: cause}
}

// InvariantViolationError marks state no correct run can produce: a
// non-decision record behind an action ID, or a broken variant weight set
// surfacing during assignment. Fatal for the operation and logged at error
// level; never silently continued.
type InvariantViolationError struct {
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return "pipeline invariant violated: " + e.Detail
}

// NewInvariantViolationError creates an InvariantViolationError.
func NewInvariantViolationError(detail string) *InvariantViolationError {
	return &InvariantViolationError{Detail: detail}
}
