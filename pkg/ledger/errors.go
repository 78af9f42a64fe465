package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors used for control flow by the pipeline and the API layer.
var (
	// ErrNotFound indicates no record matches the lookup.
	ErrNotFound = errors.New("audit record not found")

	// ErrDuplicateAction indicates a decision record already exists for
	// the action ID. Callers treat it as "someone already decided this":
	// read the existing record and replay its outcome.
	ErrDuplicateAction = errors.New("decision record already exists for action")
)

// StorageError wraps a failure inside a storage backend.
type StorageError struct {
	Backend   string // "sqlite", "memory"
	Operation string // "append", "read", "count", ...
	Cause     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// QueryError indicates a query could not be validated or executed.
type QueryError struct {
	Cause error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("ledger query error: %v", e.Cause)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a QueryError.
func NewQueryError(cause error) *QueryError {
	return &QueryError{Cause: cause}
}

// ExportError indicates records could not be exported.
type ExportError struct {
	Format      string
	RecordCount int
	Cause       error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("ledger export error [format=%s, records=%d]: %v", e.Format, e.RecordCount, e.Cause)
}

func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates an ExportError.
func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{Format: format, RecordCount: recordCount, Cause: cause}
}
