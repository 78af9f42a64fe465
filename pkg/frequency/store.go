package frequency

import (
	"context"
	"sync"
	"time"
)

// Event is one journaled send.
type Event struct {
	SubjectID string
	Channel   string
	At        time.Time
}

// Store journals send events durably so windows survive restarts.
type Store interface {
	// SaveEvent appends one send to the journal. It must be durable before
	// returning; the frequency check fails closed when it errors.
	SaveEvent(ctx context.Context, subjectID, channel string, at time.Time) error

	// LoadSince returns all events at or after since, oldest first.
	LoadSince(ctx context.Context, since time.Time) ([]Event, error)

	// Prune removes events older than before.
	Prune(ctx context.Context, before time.Time) error

	Close() error
}

// MemoryStore keeps the journal in memory. Intended for testing and
// ephemeral runs; events do not survive the process.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore creates an empty in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveEvent implements Store.
func (s *MemoryStore) SaveEvent(ctx context.Context, subjectID, channel string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{SubjectID: subjectID, Channel: channel, At: at})
	return nil
}

// LoadSince implements Store.
func (s *MemoryStore) LoadSince(ctx context.Context, since time.Time) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, e := range s.events {
		if !e.At.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Prune implements Store.
func (s *MemoryStore) Prune(ctx context.Context, before time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	for _, e := range s.events {
		if !e.At.Before(before) {
			kept = append(kept, e)
		}
	}
	s.events = kept
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// Size returns the number of journaled events. Test helper.
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
