package frequency

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"signalhouse/overture/pkg/action"
)

// DefaultRetention bounds how far back windows can reach. Policy windows
// longer than this are clamped.
const DefaultRetention = 35 * 24 * time.Hour

// DefaultBucketSize is the window bucket granularity.
const DefaultBucketSize = time.Minute

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	// Retention is how long send events are kept. Default: 35 days
	Retention time.Duration

	// BucketSize is the window bucket granularity. Default: 1m
	BucketSize time.Duration
}

// DefaultTrackerConfig returns the default tracker configuration.
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		Retention:  DefaultRetention,
		BucketSize: DefaultBucketSize,
	}
}

// keyState is one subject+channel window with its own lock. The lock makes
// read-compare-increment atomic per key without serializing other keys.
type keyState struct {
	mu     sync.Mutex
	window *Window
}

// Tracker owns all frequency windows, keyed by subject and channel, with a
// durable journal behind them.
type Tracker struct {
	config *TrackerConfig
	store  Store
	logger *slog.Logger

	mu   sync.Mutex
	keys map[string]*keyState
}

// NewTracker creates a tracker. store may be nil for ephemeral tracking.
func NewTracker(config *TrackerConfig, store Store, logger *slog.Logger) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}
	if config.BucketSize <= 0 {
		config.BucketSize = DefaultBucketSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		config: config,
		store:  store,
		logger: logger.With("component", "frequency"),
		keys:   make(map[string]*keyState),
	}
}

// trackerKey joins subject and channel with a separator that cannot appear
// in either.
func trackerKey(subjectID string, ch action.Channel) string {
	return subjectID + "\x1f" + string(ch)
}

// key returns the state for a subject+channel, creating it lazily.
func (t *Tracker) key(subjectID string, ch action.Channel) *keyState {
	k := trackerKey(subjectID, ch)

	t.mu.Lock()
	defer t.mu.Unlock()

	ks, ok := t.keys[k]
	if !ok {
		ks = &keyState{window: NewWindow(t.config.Retention, t.config.BucketSize)}
		t.keys[k] = ks
	}
	return ks
}

// Count returns the sends for a subject+channel in the trailing window.
func (t *Tracker) Count(subjectID string, ch action.Channel, window time.Duration) int {
	ks := t.key(subjectID, ch)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.window.CountSince(time.Now(), window)
}

// CountThenRecord atomically reads the trailing count for a subject+channel
// and, when it is under the cap, journals and records one more send. It
// returns the count observed before recording and whether a send was
// recorded.
//
// The journal write happens before the in-memory increment; if it fails,
// nothing is recorded and the error is returned so the caller fails closed.
func (t *Tracker) CountThenRecord(ctx context.Context, subjectID string, ch action.Channel, limit int, window time.Duration) (int, bool, error) {
	ks := t.key(subjectID, ch)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := time.Now()
	count := ks.window.CountSince(now, window)
	if count >= limit {
		return count, false, nil
	}

	if t.store != nil {
		if err := t.store.SaveEvent(ctx, subjectID, string(ch), now); err != nil {
			return count, false, err
		}
	}
	ks.window.Add(now, 1)
	return count, true, nil
}

// Record unconditionally journals and counts one send, for callers that
// confirm deliveries outside the decision path.
func (t *Tracker) Record(ctx context.Context, subjectID string, ch action.Channel) error {
	ks := t.key(subjectID, ch)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := time.Now()
	if t.store != nil {
		if err := t.store.SaveEvent(ctx, subjectID, string(ch), now); err != nil {
			return err
		}
	}
	ks.window.Add(now, 1)
	return nil
}

// Reset drops the in-memory window for a subject+channel. The journal is
// untouched; a Restore would bring the counts back.
func (t *Tracker) Reset(subjectID string, ch action.Channel) {
	ks := t.key(subjectID, ch)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.window.Reset()
}

// Restore replays the journal into in-memory windows. Call once at startup
// before serving decisions.
func (t *Tracker) Restore(ctx context.Context) error {
	if t.store == nil {
		return nil
	}

	since := time.Now().Add(-t.config.Retention)
	events, err := t.store.LoadSince(ctx, since)
	if err != nil {
		return err
	}

	for _, e := range events {
		ks := t.key(e.SubjectID, action.Channel(e.Channel))
		ks.mu.Lock()
		ks.window.Add(e.At, 1)
		ks.mu.Unlock()
	}

	t.logger.Info("frequency windows restored",
		"events", len(events),
		"since", since.Format(time.RFC3339),
	)
	return nil
}

// Keys returns the number of tracked subject+channel pairs. Test helper.
func (t *Tracker) Keys() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}
