package guardrail

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateCheck is returned when a check name is registered twice.
var ErrDuplicateCheck = errors.New("check already registered")

// Registry is an ordered, named set of checks. Evaluation order is
// registration order; the frequency check registers first so its slot
// consumption happens before any other check can reject.
type Registry struct {
	mu     sync.RWMutex
	checks []Check
	names  map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[string]struct{}),
	}
}

// Register appends a check. Names must be unique.
func (r *Registry) Register(c Check) error {
	if c == nil {
		return errors.New("check cannot be nil")
	}
	name := c.Name()
	if name == "" {
		return errors.New("check name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCheck, name)
	}
	r.names[name] = struct{}{}
	r.checks = append(r.checks, c)
	return nil
}

// Checks returns the registered checks in registration order.
func (r *Registry) Checks() []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()

	checks := make([]Check, len(r.checks))
	copy(checks, r.checks)
	return checks
}

// Len returns the number of registered checks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.checks)
}
