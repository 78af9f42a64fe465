package frequency

import (
	"sync"
	"time"
)

// bucket aggregates sends inside one bucketSize-wide slot.
type bucket struct {
	start time.Time
	count int
}

// Window is a bucketed sliding counter. Events are truncated to bucket
// boundaries and kept for the retention period; CountSince answers "how
// many sends in the trailing window" for any window up to the retention.
//
// Keeping retention independent of the queried window lets policy reloads
// shrink or grow caps and windows without rebuilding state.
type Window struct {
	retention  time.Duration
	bucketSize time.Duration

	mu      sync.Mutex
	buckets []bucket
}

// NewWindow creates a window retaining events for the given period,
// aggregated into bucketSize slots.
func NewWindow(retention, bucketSize time.Duration) *Window {
	if bucketSize <= 0 {
		bucketSize = time.Minute
	}
	if retention < bucketSize {
		retention = bucketSize
	}
	return &Window{
		retention:  retention,
		bucketSize: bucketSize,
		buckets:    make([]bucket, 0, retention/bucketSize),
	}
}

// Add records n events at the given time.
func (w *Window) Add(at time.Time, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(at.Add(-w.retention))

	start := at.Truncate(w.bucketSize)
	for i := range w.buckets {
		if w.buckets[i].start.Equal(start) {
			w.buckets[i].count += n
			return
		}
	}
	w.buckets = append(w.buckets, bucket{start: start, count: n})
}

// CountSince returns the number of events in (now-window, now]. Windows
// longer than the retention are clamped to it.
func (w *Window) CountSince(now time.Time, window time.Duration) int {
	if window > w.retention {
		window = w.retention
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now.Add(-w.retention))

	cutoff := now.Add(-window)
	total := 0
	for _, b := range w.buckets {
		// A bucket counts when any part of it is inside the window.
		if b.start.Add(w.bucketSize).After(cutoff) {
			total += b.count
		}
	}
	return total
}

// Reset drops all buckets.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buckets = w.buckets[:0]
}

// pruneLocked drops buckets that ended before the cutoff.
// Caller must hold w.mu.
func (w *Window) pruneLocked(cutoff time.Time) {
	kept := w.buckets[:0]
	for _, b := range w.buckets {
		if b.start.Add(w.bucketSize).After(cutoff) {
			kept = append(kept, b)
		}
	}
	w.buckets = kept
}
