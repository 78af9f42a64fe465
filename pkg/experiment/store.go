package experiment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists experiments, variant counters, and subject assignments.
//
// Implementations must be safe for concurrent use. AddOutcome must be
// atomic per variant; PutAssignment must upsert on (experiment, subject).
type Store interface {
	// GetExperiment returns the experiment, or ErrNotFound.
	GetExperiment(ctx context.Context, id string) (*Experiment, error)

	// ListExperiments returns all experiments, ordered by ID.
	ListExperiments(ctx context.Context) ([]*Experiment, error)

	// PutExperiment creates or replaces an experiment and its variants.
	PutExperiment(ctx context.Context, exp *Experiment) error

	// GetAssignment returns the stored assignment for the subject, or
	// ErrNoAssignment.
	GetAssignment(ctx context.Context, experimentID, subjectID string) (*Assignment, error)

	// PutAssignment stores an assignment, replacing any previous one for
	// the same experiment and subject.
	PutAssignment(ctx context.Context, asg *Assignment) error

	// AddOutcome increments a variant's counters. Counters only ever
	// increase. Unknown experiment or variant returns ErrNotFound /
	// ErrVariantNotFound.
	AddOutcome(ctx context.Context, experimentID, variantID string, impressions, conversions uint64) error

	// Close releases store resources.
	Close() error
}

// MemoryStore implements Store in process memory, for tests and the
// offline decide command. Experiments are deep-copied on the way in and
// out so callers never share mutable state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
	assignments map[string]*Assignment // experimentID + '\x1f' + subjectID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]*Experiment),
		assignments: make(map[string]*Assignment),
	}
}

func assignmentKey(experimentID, subjectID string) string {
	return experimentID + "\x1f" + subjectID
}

// GetExperiment implements Store.
func (s *MemoryStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStoreError("memory", "get", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return exp.Clone(), nil
}

// ListExperiments implements Store.
func (s *MemoryStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStoreError("memory", "list", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Experiment, 0, len(s.experiments))
	for _, exp := range s.experiments {
		out = append(out, exp.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutExperiment implements Store.
func (s *MemoryStore) PutExperiment(ctx context.Context, exp *Experiment) error {
	if err := ctx.Err(); err != nil {
		return NewStoreError("memory", "put", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiments[exp.ID] = exp.Clone()
	return nil
}

// GetAssignment implements Store.
func (s *MemoryStore) GetAssignment(ctx context.Context, experimentID, subjectID string) (*Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStoreError("memory", "get_assignment", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	asg, ok := s.assignments[assignmentKey(experimentID, subjectID)]
	if !ok {
		return nil, ErrNoAssignment
	}
	copied := *asg
	return &copied, nil
}

// PutAssignment implements Store.
func (s *MemoryStore) PutAssignment(ctx context.Context, asg *Assignment) error {
	if err := ctx.Err(); err != nil {
		return NewStoreError("memory", "put_assignment", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *asg
	if copied.AssignedAt.IsZero() {
		copied.AssignedAt = time.Now()
	}
	s.assignments[assignmentKey(asg.ExperimentID, asg.SubjectID)] = &copied
	return nil
}

// AddOutcome implements Store.
func (s *MemoryStore) AddOutcome(ctx context.Context, experimentID, variantID string, impressions, conversions uint64) error {
	if err := ctx.Err(); err != nil {
		return NewStoreError("memory", "add_outcome", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.experiments[experimentID]
	if !ok {
		return ErrNotFound
	}
	v := exp.Variant(variantID)
	if v == nil {
		return ErrVariantNotFound
	}
	v.Impressions += impressions
	v.Conversions += conversions
	exp.UpdatedAt = time.Now()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// Assignments returns the number of stored assignments. Test helper.
func (s *MemoryStore) Assignments() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assignments)
}
