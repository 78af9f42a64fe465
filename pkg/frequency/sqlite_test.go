package frequency

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// createTempStore opens a journal in a temp directory and closes it with
// the test.
func createTempStore(t *testing.T) *SQLiteStore {
	t.Helper()

	config := DefaultSQLiteStoreConfig()
	config.Path = filepath.Join(t.TempDir(), "frequency.db")
	config.CheckpointInterval = time.Hour // keep maintenance out of tests

	store, err := NewSQLiteStore(config, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return store
}

func TestSQLiteStoreSaveAndLoad(t *testing.T) {
	store := createTempStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	events := []Event{
		{SubjectID: "cust-1", Channel: "email", At: base},
		{SubjectID: "cust-1", Channel: "email", At: base.Add(time.Hour)},
		{SubjectID: "cust-2", Channel: "sms", At: base.Add(2 * time.Hour)},
	}
	for _, e := range events {
		if err := store.SaveEvent(ctx, e.SubjectID, e.Channel, e.At); err != nil {
			t.Fatalf("SaveEvent() error: %v", err)
		}
	}

	loaded, err := store.LoadSince(ctx, base)
	if err != nil {
		t.Fatalf("LoadSince() error: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("loaded %d events, want 3", len(loaded))
	}
	if !loaded[0].At.Equal(base) {
		t.Errorf("events not ordered oldest first: %v", loaded[0].At)
	}
	if loaded[2].SubjectID != "cust-2" || loaded[2].Channel != "sms" {
		t.Errorf("unexpected last event: %+v", loaded[2])
	}

	// Since filters.
	recent, err := store.LoadSince(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("LoadSince() error: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("loaded %d recent events, want 1", len(recent))
	}
}

func TestSQLiteStorePrune(t *testing.T) {
	store := createTempStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	store.SaveEvent(ctx, "cust-1", "email", base)
	store.SaveEvent(ctx, "cust-1", "email", base.Add(48*time.Hour))

	if err := store.Prune(ctx, base.Add(24*time.Hour)); err != nil {
		t.Fatalf("Prune() error: %v", err)
	}

	loaded, err := store.LoadSince(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LoadSince() error: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d events after prune, want 1", len(loaded))
	}
	if !loaded[0].At.Equal(base.Add(48 * time.Hour)) {
		t.Errorf("wrong event survived prune: %+v", loaded[0])
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "frequency.db")
	base := time.Now().Add(-time.Hour)

	config := DefaultSQLiteStoreConfig()
	config.Path = path
	config.CheckpointInterval = time.Hour

	store, err := NewSQLiteStore(config, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	if err := store.SaveEvent(ctx, "cust-1", "email", base); err != nil {
		t.Fatalf("SaveEvent() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := NewSQLiteStore(config, nil)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.LoadSince(ctx, base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("LoadSince() error: %v", err)
	}
	if len(loaded) != 1 {
		t.Errorf("loaded %d events after reopen, want 1", len(loaded))
	}
}

func TestSQLiteStoreCloseTwice(t *testing.T) {
	config := DefaultSQLiteStoreConfig()
	config.Path = filepath.Join(t.TempDir(), "frequency.db")

	store, err := NewSQLiteStore(config, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("first Close() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
}
