package frequency

import (
	"sync"
	"time"
)

// tokenBucket is a classic token bucket: capacity bounds the burst, tokens
// refill at a constant rate, one token per submission.
type tokenBucket struct {
	capacity   int64
	refillRate float64

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(capacity int64, refillRate float64) *tokenBucket {
	return &tokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

// take consumes one token if available.
func (b *tokenBucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// refillLocked adds tokens for the elapsed time, up to capacity.
// Caller must hold b.mu.
func (b *tokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed.Seconds() * b.refillRate
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
	b.lastRefill = now
}

// bucketParams identifies the policy a bucket was built with, so policy
// reloads replace buckets whose limits changed.
type bucketParams struct {
	burst     int64
	perSecond float64
}

// RateLimiter holds one token bucket per subject for the submission-rate
// guardrail check. Buckets are created lazily and rebuilt when the policy
// limits change.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	params  map[string]bucketParams
}

// NewRateLimiter creates an empty per-subject rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		params:  make(map[string]bucketParams),
	}
}

// Allow consumes one token from the subject's bucket, creating it with the
// given limits on first use. Returns false when the bucket is empty.
func (r *RateLimiter) Allow(subjectID string, burst int64, perSecond float64) bool {
	r.mu.Lock()
	want := bucketParams{burst: burst, perSecond: perSecond}
	b, ok := r.buckets[subjectID]
	if !ok || r.params[subjectID] != want {
		b = newTokenBucket(burst, perSecond)
		r.buckets[subjectID] = b
		r.params[subjectID] = want
	}
	r.mu.Unlock()

	return b.take()
}

// Size returns the number of live buckets. Test helper.
func (r *RateLimiter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}
