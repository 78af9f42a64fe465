package storage

import (
	"context"
	"sync"

	"signalhouse/overture/pkg/ledger"
)

// MemoryStorage implements ledger.Storage in process memory. It carries
// the same semantics as the SQLite backend — strictly increasing sequence
// numbers, one decision per action, deep copies on every read — and backs
// tests, the offline decide command, and ephemeral runs.
type MemoryStorage struct {
	mu          sync.RWMutex
	records     []*ledger.Record
	nextSeq     uint64
	decisionIdx map[string]uint64 // action ID -> decision seq
}

// NewMemoryStorage creates an empty in-memory ledger.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		nextSeq:     1,
		decisionIdx: make(map[string]uint64),
	}
}

// Append implements ledger.Storage.
func (s *MemoryStorage) Append(ctx context.Context, record *ledger.Record) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, ledger.NewStorageError("memory", "append", err)
	}

	prepared, err := prepareRecord(record)
	if err != nil {
		return 0, ledger.NewStorageError("memory", "append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prepared.Kind == ledger.KindDecision {
		if _, exists := s.decisionIdx[prepared.ActionID]; exists {
			return 0, ledger.ErrDuplicateAction
		}
	}

	prepared.Seq = s.nextSeq
	s.nextSeq++
	s.records = append(s.records, prepared)
	if prepared.Kind == ledger.KindDecision {
		s.decisionIdx[prepared.ActionID] = prepared.Seq
	}

	record.ID = prepared.ID
	record.CreatedAt = prepared.CreatedAt
	record.Seq = prepared.Seq
	return prepared.Seq, nil
}

// Read implements ledger.Storage.
func (s *MemoryStorage) Read(ctx context.Context, query *ledger.Query) ([]*ledger.Record, error) {
	if query == nil {
		query = &ledger.Query{}
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []*ledger.Record{}
	skipped := 0
	limit := query.EffectiveLimit()

	// Records are stored in seq order already.
	for _, record := range s.records {
		if !matches(record, query) {
			continue
		}
		if skipped < query.Offset {
			skipped++
			continue
		}
		if len(results) >= limit {
			break
		}
		results = append(results, copyRecord(record))
	}
	return results, nil
}

// Count implements ledger.Storage.
func (s *MemoryStorage) Count(ctx context.Context, query *ledger.Query) (int64, error) {
	if query == nil {
		query = &ledger.Query{}
	}
	if err := query.Validate(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if matches(record, query) {
			count++
		}
	}
	return count, nil
}

// GetBySeq implements ledger.Storage.
func (s *MemoryStorage) GetBySeq(ctx context.Context, seq uint64) (*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.records {
		if record.Seq == seq {
			return copyRecord(record), nil
		}
	}
	return nil, ledger.ErrNotFound
}

// GetByActionID implements ledger.Storage.
func (s *MemoryStorage) GetByActionID(ctx context.Context, actionID string) (*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq, ok := s.decisionIdx[actionID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	for _, record := range s.records {
		if record.Seq == seq {
			return copyRecord(record), nil
		}
	}
	return nil, ledger.ErrNotFound
}

// GetCorrectionFor implements ledger.Storage.
func (s *MemoryStorage) GetCorrectionFor(ctx context.Context, seq uint64) (*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.records {
		if record.Kind == ledger.KindCorrection && record.CorrectsSeq == seq {
			return copyRecord(record), nil
		}
	}
	return nil, ledger.ErrNotFound
}

// LastSeq returns the highest assigned sequence number, zero when empty.
func (s *MemoryStorage) LastSeq(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSeq - 1, nil
}

// Ping reports readiness; memory storage is always ready.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close implements ledger.Storage.
func (s *MemoryStorage) Close() error {
	return nil
}

// Size returns the number of stored records. Test helper.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// matches applies the query filters to one record.
func matches(record *ledger.Record, query *ledger.Query) bool {
	if query.SubjectID != "" && record.SubjectID != query.SubjectID {
		return false
	}
	if query.ActionID != "" && record.ActionID != query.ActionID {
		return false
	}
	if query.ExperimentID != "" && record.ExperimentID != query.ExperimentID {
		return false
	}
	if query.Verdict != "" && record.Verdict != query.Verdict {
		return false
	}
	if query.Kind != "" && record.Kind != query.Kind {
		return false
	}
	if query.Since != nil && record.CreatedAt.Before(*query.Since) {
		return false
	}
	if query.Until != nil && record.CreatedAt.After(*query.Until) {
		return false
	}
	return true
}
