// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Buckets untouched for this long are dropped on the next sweep.
const bucketIdleTTL = 10 * time.Minute

type rateLimitDecision struct {
	Allowed           bool
	LimitPerMinute    int
	Remaining         int
	RetryAfterSeconds int
}

type tokenBucket struct {
	capacity        float64
	tokens          float64
	refillPerSecond float64
	lastRefill      time.Time
}

// inMemoryRateLimiter keeps one token bucket per API key in this process.
type inMemoryRateLimiter struct {
	mu        sync.Mutex
	buckets   map[uuid.UUID]*tokenBucket
	lastSweep time.Time
}

func newInMemoryRateLimiter() *inMemoryRateLimiter {
	return &inMemoryRateLimiter{
		buckets: make(map[uuid.UUID]*tokenBucket, 32),
	}
}

func (l *inMemoryRateLimiter) Allow(keyID uuid.UUID, limitPerMinute int, now time.Time) rateLimitDecision {
	if limitPerMinute <= 0 {
		limitPerMinute = 1
	}
	capacity := float64(limitPerMinute)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	bucket, ok := l.buckets[keyID]
	if !ok || bucket.capacity != capacity {
		bucket = &tokenBucket{
			capacity:        capacity,
			tokens:          capacity,
			refillPerSecond: capacity / 60.0,
			lastRefill:      now,
		}
		l.buckets[keyID] = bucket
	}

	if elapsed := now.Sub(bucket.lastRefill).Seconds(); elapsed > 0 {
		bucket.tokens = math.Min(bucket.capacity, bucket.tokens+elapsed*bucket.refillPerSecond)
		bucket.lastRefill = now
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		return rateLimitDecision{
			Allowed:        true,
			LimitPerMinute: limitPerMinute,
			Remaining:      int(math.Floor(bucket.tokens)),
		}
	}

	wait := int(math.Ceil((1 - bucket.tokens) / bucket.refillPerSecond))
	if wait < 1 {
		wait = 1
	}
	return rateLimitDecision{
		LimitPerMinute:    limitPerMinute,
		Remaining:         0,
		RetryAfterSeconds: wait,
	}
}

func (l *inMemoryRateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < bucketIdleTTL {
		return
	}
	l.lastSweep = now
	for id, b := range l.buckets {
		if now.Sub(b.lastRefill) >= bucketIdleTTL {
			delete(l.buckets, id)
		}
	}
}

func (l *inMemoryRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
