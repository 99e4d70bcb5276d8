package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickwarner/rtbengine/internal/observability"
)

// ZoneLimiter admits bid requests per zone.
//
// Each zone gets its own token bucket, created lazily on first access.
//
//	limiter := NewZoneLimiter(Config{Capacity: 100, RefillRate: 50, Enabled: true}, metrics)
//	if !limiter.Allow(req.ZoneID) {
//	    // answer with a no-bid without running the auction
//	}
type ZoneLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
	now     func() time.Time
}

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity   int  // Token bucket capacity (burst allowance)
	RefillRate int  // Tokens added per second (sustained rate)
	Enabled    bool // Whether rate limiting is active
}

// NewZoneLimiter creates a zone limiter with the given configuration.
func NewZoneLimiter(config Config, metrics observability.MetricsRegistry) *ZoneLimiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &ZoneLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
		now:     time.Now,
	}
}

// Allow reports whether a request for zoneID may proceed to the auction.
// It always returns true when limiting is disabled.
func (zl *ZoneLimiter) Allow(zoneID string) bool {
	if zl == nil || !zl.config.Enabled {
		return true
	}

	zl.mu.RLock()
	bucket, exists := zl.buckets[zoneID]
	zl.mu.RUnlock()

	if !exists {
		zl.mu.Lock()
		bucket, exists = zl.buckets[zoneID]
		if !exists {
			bucket = newTokenBucketWithClock(zl.config.Capacity, zl.config.RefillRate, zl.now)
			zl.buckets[zoneID] = bucket
		}
		zl.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		zl.metrics.IncrementRateLimited(zoneID)
	}
	return allowed
}

// GetStats returns a snapshot of limiting activity keyed by zone.
func (zl *ZoneLimiter) GetStats() map[string]RateLimitStats {
	zl.mu.RLock()
	defer zl.mu.RUnlock()

	stats := make(map[string]RateLimitStats, len(zl.buckets))
	for zoneID, bucket := range zl.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[zoneID] = RateLimitStats{
			ZoneID:  zoneID,
			Hits:    hits,
			Total:   total,
			HitRate: hitRate,
		}
	}
	return stats
}

// RateLimitStats contains limiting statistics for a single zone.
type RateLimitStats struct {
	ZoneID  string  `json:"zone_id"`
	Hits    int64   `json:"hits"`     // Requests refused
	Total   int64   `json:"total"`    // Requests seen
	HitRate float64 `json:"hit_rate"` // Fraction refused (0.0-1.0)
}

func (rls RateLimitStats) String() string {
	return fmt.Sprintf("zone %s: %d/%d limited (%.2f%%)",
		rls.ZoneID, rls.Hits, rls.Total, rls.HitRate*100)
}
