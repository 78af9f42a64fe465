package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"signalhouse/overture/pkg/ledger"
)

// prepareRecord validates a record for append and returns a copy with the
// storage-owned fields (ID, CreatedAt) filled in. The caller's record is
// not mutated until the append succeeds.
func prepareRecord(record *ledger.Record) (*ledger.Record, error) {
	if record == nil {
		return nil, errors.New("record cannot be nil")
	}
	if record.ActionID == "" {
		return nil, errors.New("record action_id is required")
	}
	if record.SubjectID == "" {
		return nil, errors.New("record subject_id is required")
	}
	if !record.Kind.Valid() {
		return nil, errors.New("record kind must be decision or correction")
	}
	if record.Verdict == "" {
		return nil, errors.New("record verdict is required")
	}
	if record.Kind == ledger.KindCorrection && record.CorrectsSeq == 0 {
		return nil, errors.New("correction records must reference the corrected seq")
	}
	if record.Kind == ledger.KindDecision && record.CorrectsSeq != 0 {
		return nil, errors.New("decision records must not reference another record")
	}

	prepared := copyRecord(record)
	if prepared.ID == "" {
		prepared.ID = uuid.New().String()
	}
	if prepared.CreatedAt.IsZero() {
		prepared.CreatedAt = time.Now().UTC()
	}
	return prepared, nil
}

// copyRecord deep-copies a record so stored state can never alias caller
// memory.
func copyRecord(record *ledger.Record) *ledger.Record {
	cp := *record
	if record.Results != nil {
		cp.Results = make([]ledger.CheckResult, len(record.Results))
		copy(cp.Results, record.Results)
	}
	return &cp
}
