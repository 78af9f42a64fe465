package subject

import (
	"context"
	"sync"
	"time"
)

// StaticProvider is a map-backed Provider for tests and offline decisions.
// It is safe for concurrent use. Snapshots are returned as copies so
// callers cannot mutate provider state through them.
type StaticProvider struct {
	mu       sync.RWMutex
	subjects map[string]*Snapshot
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		subjects: make(map[string]*Snapshot),
	}
}

// Put stores or replaces the snapshot for a subject.
func (p *StaticProvider) Put(snap *Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := copySnapshot(snap)
	p.subjects[snap.SubjectID] = cp
}

// Remove deletes the stored state for a subject.
func (p *StaticProvider) Remove(subjectID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subjects, subjectID)
}

// Size returns the number of stored subjects.
func (p *StaticProvider) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subjects)
}

// Snapshot implements Provider.
func (p *StaticProvider) Snapshot(ctx context.Context, subjectID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	stored, ok := p.subjects[subjectID]
	if !ok {
		return nil, ErrNotFound
	}

	cp := copySnapshot(stored)
	if cp.TakenAt.IsZero() {
		cp.TakenAt = time.Now()
	}
	return cp, nil
}

func copySnapshot(s *Snapshot) *Snapshot {
	cp := *s
	if s.Consents != nil {
		cp.Consents = make([]Consent, len(s.Consents))
		copy(cp.Consents, s.Consents)
	}
	if s.Attributes != nil {
		cp.Attributes = make(map[string]string, len(s.Attributes))
		for k, v := range s.Attributes {
			cp.Attributes[k] = v
		}
	}
	return &cp
}
