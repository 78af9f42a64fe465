// Package frequency tracks per-subject-per-channel send counts over
// rolling windows, backing the frequency guardrail check.
//
// Counts live in bucketed in-memory windows keyed by subject and channel.
// Each key has its own lock, so concurrent decisions for different
// subjects never contend, while CountThenRecord gives the frequency check
// an atomic read-compare-increment for one key: two concurrent actions for
// the same subject can never both observe "under cap".
//
// A Store journals every recorded send durably. On startup the tracker
// replays the journal so caps survive process restarts; the SQLite store
// prunes events older than the retention horizon in the background.
package frequency
