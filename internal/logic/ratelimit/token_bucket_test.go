package ratelimit

import (
	"testing"
	"time"

	"github.com/patrickwarner/rtbengine/internal/observability"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenBucket_Allow(t *testing.T) {
	bucket := NewTokenBucket(5, 1)

	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}
	if bucket.Allow() {
		t.Error("Expected 6th request to be blocked")
	}

	hits, total := bucket.Stats()
	if hits != 1 {
		t.Errorf("Expected 1 hit, got %d", hits)
	}
	if total != 6 {
		t.Errorf("Expected 6 total requests, got %d", total)
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	bucket := newTokenBucketWithClock(2, 10, clock.Now)

	bucket.Allow()
	bucket.Allow()
	if bucket.Allow() {
		t.Error("Expected request to be blocked")
	}

	clock.Advance(200 * time.Millisecond) // 0.2s * 10/s = 2 tokens
	if !bucket.Allow() {
		t.Error("Expected request to be allowed after refill")
	}

	// refill never exceeds capacity
	clock.Advance(time.Hour)
	allowed := 0
	for i := 0; i < 5; i++ {
		if bucket.Allow() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("Expected 2 allowed after long idle, got %d", allowed)
	}
}

func TestTokenBucket_FractionalRefillCarriesOver(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	bucket := newTokenBucketWithClock(5, 10, clock.Now)
	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow())
	}

	clock.Advance(150 * time.Millisecond) // 1.5 tokens
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow(), "half a token is not enough")

	clock.Advance(60 * time.Millisecond) // 0.5 + 0.6
	assert.True(t, bucket.Allow())
}

func TestZoneLimiter_PerZoneBuckets(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	limiter := NewZoneLimiter(Config{Capacity: 1, RefillRate: 0, Enabled: true}, metrics)

	assert.True(t, limiter.Allow("zone-a"))
	assert.False(t, limiter.Allow("zone-a"))
	assert.True(t, limiter.Allow("zone-b"), "zones do not share a bucket")

	assert.Equal(t, 1, metrics.RateLimited["zone-a"])
	assert.Zero(t, metrics.RateLimited["zone-b"])

	stats := limiter.GetStats()
	assert.Equal(t, int64(2), stats["zone-a"].Total)
	assert.Equal(t, 0.5, stats["zone-a"].HitRate)
	assert.Equal(t, "zone zone-a: 1/2 limited (50.00%)", stats["zone-a"].String())
}

func TestZoneLimiter_Disabled(t *testing.T) {
	limiter := NewZoneLimiter(Config{Capacity: 0, Enabled: false}, nil)
	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("zone-a"))
	}
	assert.Empty(t, limiter.GetStats())

	var nilLimiter *ZoneLimiter
	assert.True(t, nilLimiter.Allow("zone-a"))
}
