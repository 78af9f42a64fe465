package experiment

import (
	"errors"
	"fmt"
)

// Sentinel errors used for control flow by the pipeline and the API layer.
var (
	// ErrNotFound indicates the experiment does not exist.
	ErrNotFound = errors.New("experiment not found")

	// ErrVariantNotFound indicates the variant does not exist within its
	// experiment.
	ErrVariantNotFound = errors.New("variant not found")

	// ErrExperimentClosed indicates the experiment no longer accepts
	// assignments. The pipeline records the decision without a variant.
	ErrExperimentClosed = errors.New("experiment is closed")

	// ErrAlreadyExists indicates an experiment with the same ID is
	// already registered.
	ErrAlreadyExists = errors.New("experiment already exists")

	// ErrNoAssignment indicates no stored assignment exists for the
	// subject.
	ErrNoAssignment = errors.New("no assignment for subject")
)

// InvariantError reports experiment state that must never occur: a weight
// set not summing to 1, or a missing control. Operations abort and leave
// the experiment unchanged rather than persist inconsistent state.
type InvariantError struct {
	ExperimentID string
	Detail       string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("experiment invariant violated [experiment=%s]: %s", e.ExperimentID, e.Detail)
}

// NewInvariantError creates an InvariantError.
func NewInvariantError(experimentID, detail string) *InvariantError {
	return &InvariantError{ExperimentID: experimentID, Detail: detail}
}

// StoreError wraps a failure inside an experiment store backend.
type StoreError struct {
	Backend   string // "sqlite", "memory"
	Operation string // "get", "put", "add_outcome", ...
	Cause     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("experiment store error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a StoreError.
func NewStoreError(backend, operation string, cause error) *StoreError {
	return &StoreError{Backend: backend, Operation: operation, Cause: cause}
}
