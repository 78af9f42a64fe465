package policy

import (
	"errors"
	"fmt"
)

// ErrNoPack indicates the manager has no loaded pack yet.
var ErrNoPack = errors.New("no policy pack loaded")

// LoadError indicates a pack could not be loaded from its source.
type LoadError struct {
	Source string
	Cause  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("policy load from %s failed: %v", e.Source, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// NewLoadError creates a LoadError for the given source description.
func NewLoadError(source string, cause error) *LoadError {
	return &LoadError{Source: source, Cause: cause}
}

// ValidationError indicates a pack field holds an unusable value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("policy validation failed: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for a pack field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// WatchError indicates the hot-reload watcher failed.
type WatchError struct {
	Path  string
	Cause error
}

func (e *WatchError) Error() string {
	return fmt.Sprintf("policy watch on %s failed: %v", e.Path, e.Cause)
}

func (e *WatchError) Unwrap() error {
	return e.Cause
}
