package experiment

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// createTempStore opens an experiment database in a temp directory and
// closes it with the test.
func createTempStore(t *testing.T) *SQLiteStore {
	t.Helper()

	config := DefaultSQLiteStoreConfig()
	config.Path = filepath.Join(t.TempDir(), "experiments.db")

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

func TestSQLiteStoreExperimentRoundtrip(t *testing.T) {
	store := createTempStore(t)
	ctx := context.Background()

	started := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	put := &Experiment{
		ID:        "exp-1",
		Name:      "subject line length",
		State:     StateSignificant,
		StartedAt: started,
		WinnerID:  "",
		UpdatedAt: started.Add(72 * time.Hour),
		Variants: []Variant{
			{ID: "control", Weight: 0.25, Control: true, Impressions: 1200, Conversions: 36},
			{ID: "short-subject", Weight: 0.75, Impressions: 1180, Conversions: 59},
		},
	}
	if err := store.PutExperiment(ctx, put); err != nil {
		t.Fatalf("PutExperiment() error: %v", err)
	}

	got, err := store.GetExperiment(ctx, "exp-1")
	if err != nil {
		t.Fatalf("GetExperiment() error: %v", err)
	}
	if got.ID != put.ID || got.Name != put.Name || got.State != put.State {
		t.Errorf("header fields lost: %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if !got.ClosedAt.IsZero() {
		t.Errorf("ClosedAt = %v, want zero", got.ClosedAt)
	}
	if len(got.Variants) != 2 {
		t.Fatalf("got %d variants, want 2", len(got.Variants))
	}
	// Variants load in ID order.
	if got.Variants[0].ID != "control" || got.Variants[1].ID != "short-subject" {
		t.Errorf("variant order: %s, %s", got.Variants[0].ID, got.Variants[1].ID)
	}
	v := got.Variant("short-subject")
	if v.Weight != 0.75 || v.Impressions != 1180 || v.Conversions != 59 || v.Control {
		t.Errorf("variant fields lost: %+v", v)
	}
	if !got.Variants[0].Control {
		t.Error("control flag lost")
	}

	if _, err := store.GetExperiment(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetExperiment(missing) = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorePutReplacesVariantSet(t *testing.T) {
	store := createTempStore(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Hour)

	if err := store.PutExperiment(ctx, &Experiment{
		ID: "exp-1", State: StateCollecting, StartedAt: started,
		Variants: []Variant{
			{ID: "control", Weight: 0.34, Control: true},
			{ID: "challenger-a", Weight: 0.33},
			{ID: "challenger-b", Weight: 0.33},
		},
	}); err != nil {
		t.Fatalf("PutExperiment() error: %v", err)
	}

	// Replace with a reweighted two-variant set, one arm gone.
	if err := store.PutExperiment(ctx, &Experiment{
		ID: "exp-1", State: StateClosed, StartedAt: started,
		ClosedAt: time.Now(), WinnerID: "challenger-a",
		Variants: []Variant{
			{ID: "control", Weight: 0, Control: true},
			{ID: "challenger-a", Weight: 1},
		},
	}); err != nil {
		t.Fatalf("replacing PutExperiment() error: %v", err)
	}

	got, err := store.GetExperiment(ctx, "exp-1")
	if err != nil {
		t.Fatalf("GetExperiment() error: %v", err)
	}
	if len(got.Variants) != 2 {
		t.Fatalf("got %d variants after replace, want 2", len(got.Variants))
	}
	if got.Variant("challenger-b") != nil {
		t.Error("removed variant still present")
	}
	if got.State != StateClosed || got.WinnerID != "challenger-a" {
		t.Errorf("close fields lost: state=%s winner=%q", got.State, got.WinnerID)
	}
	if got.ClosedAt.IsZero() {
		t.Error("ClosedAt lost")
	}
}

func TestSQLiteStoreListOrdersByID(t *testing.T) {
	store := createTempStore(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Hour)

	for _, id := range []string{"exp-b", "exp-a", "exp-c"} {
		if err := store.PutExperiment(ctx, &Experiment{
			ID: id, State: StateCollecting, StartedAt: started,
			Variants: []Variant{
				{ID: "control", Weight: 0.5, Control: true},
				{ID: "challenger", Weight: 0.5},
			},
		}); err != nil {
			t.Fatalf("PutExperiment(%s) error: %v", id, err)
		}
	}

	list, err := store.ListExperiments(ctx)
	if err != nil {
		t.Fatalf("ListExperiments() error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("listed %d experiments, want 3", len(list))
	}
	for i, want := range []string{"exp-a", "exp-b", "exp-c"} {
		if list[i].ID != want {
			t.Errorf("list[%d] = %s, want %s", i, list[i].ID, want)
		}
		if len(list[i].Variants) != 2 {
			t.Errorf("list[%d] carries %d variants, want 2", i, len(list[i].Variants))
		}
	}
}

func TestSQLiteStoreAssignmentUpsert(t *testing.T) {
	store := createTempStore(t)
	ctx := context.Background()

	if _, err := store.GetAssignment(ctx, "exp-1", "cust-1"); !errors.Is(err, ErrNoAssignment) {
		t.Errorf("GetAssignment(empty) = %v, want ErrNoAssignment", err)
	}

	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := store.PutAssignment(ctx, &Assignment{
		ExperimentID: "exp-1", SubjectID: "cust-1", VariantID: "control", AssignedAt: at,
	}); err != nil {
		t.Fatalf("PutAssignment() error: %v", err)
	}

	got, err := store.GetAssignment(ctx, "exp-1", "cust-1")
	if err != nil {
		t.Fatalf("GetAssignment() error: %v", err)
	}
	if got.VariantID != "control" || !got.AssignedAt.Equal(at) {
		t.Errorf("assignment lost fields: %+v", got)
	}

	// Same key again supersedes rather than duplicating.
	if err := store.PutAssignment(ctx, &Assignment{
		ExperimentID: "exp-1", SubjectID: "cust-1", VariantID: "challenger",
	}); err != nil {
		t.Fatalf("upsert PutAssignment() error: %v", err)
	}
	got, err = store.GetAssignment(ctx, "exp-1", "cust-1")
	if err != nil {
		t.Fatalf("GetAssignment() after upsert error: %v", err)
	}
	if got.VariantID != "challenger" {
		t.Errorf("upsert kept old variant %s", got.VariantID)
	}
	if got.AssignedAt.IsZero() {
		t.Error("upsert with zero AssignedAt did not default to now")
	}
}

func TestSQLiteStoreAddOutcome(t *testing.T) {
	store := createTempStore(t)
	ctx := context.Background()

	if err := store.PutExperiment(ctx, &Experiment{
		ID: "exp-1", State: StateCollecting, StartedAt: time.Now().Add(-time.Hour),
		Variants: []Variant{
			{ID: "control", Weight: 0.5, Control: true},
			{ID: "challenger", Weight: 0.5},
		},
	}); err != nil {
		t.Fatalf("PutExperiment() error: %v", err)
	}

	if err := store.AddOutcome(ctx, "exp-1", "challenger", 100, 7); err != nil {
		t.Fatalf("AddOutcome() error: %v", err)
	}
	if err := store.AddOutcome(ctx, "exp-1", "challenger", 50, 3); err != nil {
		t.Fatalf("AddOutcome() error: %v", err)
	}

	got, err := store.GetExperiment(ctx, "exp-1")
	if err != nil {
		t.Fatalf("GetExperiment() error: %v", err)
	}
	v := got.Variant("challenger")
	if v.Impressions != 150 || v.Conversions != 10 {
		t.Errorf("counters = %d/%d, want 150/10", v.Impressions, v.Conversions)
	}
	if c := got.Variant("control"); c.Impressions != 0 {
		t.Errorf("control counters moved: %d", c.Impressions)
	}

	if err := store.AddOutcome(ctx, "exp-1", "ghost", 1, 0); !errors.Is(err, ErrVariantNotFound) {
		t.Errorf("AddOutcome(unknown variant) = %v, want ErrVariantNotFound", err)
	}
	if err := store.AddOutcome(ctx, "ghost", "control", 1, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddOutcome(unknown experiment) = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	config := DefaultSQLiteStoreConfig()
	config.Path = filepath.Join(t.TempDir(), "experiments.db")

	store, err := NewSQLiteStore(config, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	if err := store.PutExperiment(ctx, &Experiment{
		ID: "exp-1", State: StateCollecting, StartedAt: time.Now().Add(-time.Hour),
		Variants: []Variant{
			{ID: "control", Weight: 0.5, Control: true, Impressions: 10},
			{ID: "challenger", Weight: 0.5},
		},
	}); err != nil {
		t.Fatalf("PutExperiment() error: %v", err)
	}
	if err := store.PutAssignment(ctx, &Assignment{
		ExperimentID: "exp-1", SubjectID: "cust-1", VariantID: "control",
	}); err != nil {
		t.Fatalf("PutAssignment() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := NewSQLiteStore(config, nil)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetExperiment(ctx, "exp-1")
	if err != nil {
		t.Fatalf("GetExperiment() after reopen error: %v", err)
	}
	if got.Variant("control").Impressions != 10 {
		t.Errorf("counters lost across reopen: %+v", got.Variant("control"))
	}
	asg, err := reopened.GetAssignment(ctx, "exp-1", "cust-1")
	if err != nil {
		t.Fatalf("GetAssignment() after reopen error: %v", err)
	}
	if asg.VariantID != "control" {
		t.Errorf("assignment lost across reopen: %+v", asg)
	}
}

func TestSQLiteStoreCloseTwice(t *testing.T) {
	config := DefaultSQLiteStoreConfig()
	config.Path = filepath.Join(t.TempDir(), "experiments.db")

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

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	exp := &Experiment{
		ID: "exp-1", State: StateCollecting, StartedAt: time.Now(),
		Variants: []Variant{
			{ID: "control", Weight: 0.5, Control: true},
			{ID: "challenger", Weight: 0.5},
		},
	}
	if err := store.PutExperiment(ctx, exp); err != nil {
		t.Fatalf("PutExperiment() error: %v", err)
	}

	// Mutating what the caller put in or got out must not touch the store.
	exp.Variants[0].Weight = 0.9
	first, _ := store.GetExperiment(ctx, "exp-1")
	first.Variants[1].Weight = 0.9
	second, _ := store.GetExperiment(ctx, "exp-1")

	if second.Variants[0].Weight != 0.5 || second.Variants[1].Weight != 0.5 {
		t.Errorf("store shares mutable state with callers: %+v", second.Variants)
	}
}
