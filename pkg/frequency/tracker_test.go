package frequency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signalhouse/overture/pkg/action"
)

func TestCountThenRecordUnderCap(t *testing.T) {
	tr := NewTracker(nil, NewMemoryStore(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		count, recorded, err := tr.CountThenRecord(ctx, "cust-1", action.ChannelEmail, 3, 168*time.Hour)
		if err != nil {
			t.Fatalf("CountThenRecord() error: %v", err)
		}
		if !recorded {
			t.Fatalf("send %d should be recorded", i+1)
		}
		if count != i {
			t.Errorf("send %d observed count %d, want %d", i+1, count, i)
		}
	}

	count, recorded, err := tr.CountThenRecord(ctx, "cust-1", action.ChannelEmail, 3, 168*time.Hour)
	if err != nil {
		t.Fatalf("CountThenRecord() error: %v", err)
	}
	if recorded {
		t.Error("fourth send should be rejected at cap 3")
	}
	if count != 3 {
		t.Errorf("observed count = %d, want 3", count)
	}
}

func TestCountThenRecordIsolatesKeys(t *testing.T) {
	tr := NewTracker(nil, nil, nil)
	ctx := context.Background()

	if _, recorded, _ := tr.CountThenRecord(ctx, "cust-1", action.ChannelEmail, 1, time.Hour); !recorded {
		t.Fatal("first email send should record")
	}
	// Same subject, other channel: independent window.
	if _, recorded, _ := tr.CountThenRecord(ctx, "cust-1", action.ChannelSMS, 1, time.Hour); !recorded {
		t.Error("sms window should be independent of email")
	}
	// Other subject, same channel: independent window.
	if _, recorded, _ := tr.CountThenRecord(ctx, "cust-2", action.ChannelEmail, 1, time.Hour); !recorded {
		t.Error("cust-2 window should be independent of cust-1")
	}
}

// The cap must hold under concurrent submissions for one subject: with cap
// N and many concurrent attempts, exactly N record.
func TestCountThenRecordConcurrentCap(t *testing.T) {
	tr := NewTracker(nil, NewMemoryStore(), nil)
	ctx := context.Background()

	const attempts = 50
	const sendCap = 3

	var wg sync.WaitGroup
	var mu sync.Mutex
	recordedCount := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, recorded, err := tr.CountThenRecord(ctx, "cust-hot", action.ChannelEmail, sendCap, 168*time.Hour)
			if err != nil {
				t.Errorf("CountThenRecord() error: %v", err)
				return
			}
			if recorded {
				mu.Lock()
				recordedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if recordedCount != sendCap {
		t.Errorf("recorded %d sends under concurrency, want exactly %d", recordedCount, sendCap)
	}
	if got := tr.Count("cust-hot", action.ChannelEmail, 168*time.Hour); got != sendCap {
		t.Errorf("window count = %d, want %d", got, sendCap)
	}
}

// failingStore errors on save so the journal-first contract is observable.
type failingStore struct {
	MemoryStore
}

var errJournalDown = errors.New("journal down")

func (s *failingStore) SaveEvent(ctx context.Context, subjectID, channel string, at time.Time) error {
	return errJournalDown
}

func TestCountThenRecordJournalFailure(t *testing.T) {
	tr := NewTracker(nil, &failingStore{}, nil)
	ctx := context.Background()

	_, recorded, err := tr.CountThenRecord(ctx, "cust-1", action.ChannelEmail, 3, time.Hour)
	if !errors.Is(err, errJournalDown) {
		t.Fatalf("CountThenRecord() = %v, want errJournalDown", err)
	}
	if recorded {
		t.Error("failed journal write must not record")
	}
	// The in-memory window must not have incremented either.
	if got := tr.Count("cust-1", action.ChannelEmail, time.Hour); got != 0 {
		t.Errorf("window count = %d, want 0 after failed journal write", got)
	}
}

func TestTrackerRestore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := NewTracker(nil, store, nil)
	for i := 0; i < 2; i++ {
		if _, recorded, err := first.CountThenRecord(ctx, "cust-1", action.ChannelEmail, 5, 168*time.Hour); err != nil || !recorded {
			t.Fatalf("seed send %d failed: recorded=%v err=%v", i, recorded, err)
		}
	}

	// A fresh tracker over the same journal sees the history after Restore.
	second := NewTracker(nil, store, nil)
	if got := second.Count("cust-1", action.ChannelEmail, 168*time.Hour); got != 0 {
		t.Fatalf("pre-restore count = %d, want 0", got)
	}
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if got := second.Count("cust-1", action.ChannelEmail, 168*time.Hour); got != 2 {
		t.Errorf("post-restore count = %d, want 2", got)
	}

	count, recorded, err := second.CountThenRecord(ctx, "cust-1", action.ChannelEmail, 3, 168*time.Hour)
	if err != nil || !recorded {
		t.Fatalf("CountThenRecord() after restore: recorded=%v err=%v", recorded, err)
	}
	if count != 2 {
		t.Errorf("observed count = %d, want 2", count)
	}
}

func TestRateLimiterBurstAndIsolation(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 5; i++ {
		if !rl.Allow("cust-1", 5, 1) {
			t.Fatalf("burst submission %d should pass", i+1)
		}
	}
	if rl.Allow("cust-1", 5, 1) {
		t.Error("submission past the burst should be limited")
	}

	// Another subject has its own bucket.
	if !rl.Allow("cust-2", 5, 1) {
		t.Error("cust-2 should not share cust-1's bucket")
	}
}

func TestRateLimiterRebuildsOnPolicyChange(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 2; i++ {
		rl.Allow("cust-1", 2, 1)
	}
	if rl.Allow("cust-1", 2, 1) {
		t.Fatal("bucket should be drained")
	}

	// Raising the burst replaces the bucket.
	if !rl.Allow("cust-1", 10, 1) {
		t.Error("new limits should take effect immediately")
	}
}
