// Package ratelimit implements per-zone token bucket admission control in
// front of the auction. A zone may burst up to the bucket capacity and is
// then held to the refill rate, so one noisy zone cannot consume the
// auction capacity every other zone relies on.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a mutex-guarded token bucket. Tokens are fractional so
// refill credit below one whole token carries over between calls.
type TokenBucket struct {
	mu       sync.Mutex
	capacity float64
	rate     float64 // tokens per second
	tokens   float64
	last     time.Time
	refused  int64
	seen     int64
	now      func() time.Time
}

// NewTokenBucket returns a full bucket holding capacity tokens and
// regaining refillRate tokens per second.
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return newTokenBucketWithClock(capacity, refillRate, time.Now)
}

func newTokenBucketWithClock(capacity, refillRate int, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity: float64(capacity),
		rate:     float64(refillRate),
		tokens:   float64(capacity),
		last:     now(),
		now:      now,
	}
}

// Allow takes one token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.seen++
	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	tb.refused++
	return false
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	if elapsed := now.Sub(tb.last); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed.Seconds()*tb.rate)
	}
	tb.last = now
}

// Stats returns how many requests were refused and how many were seen.
func (tb *TokenBucket) Stats() (refused, seen int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.refused, tb.seen
}
