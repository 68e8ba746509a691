// Package memory provides in-memory implementations of outbound ports:
// the fixed-window rate limiter that backs the admission pipeline.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mcpfirewall/sidecar/internal/domain/ratelimit"
)

// shardCount is the number of independent lock domains the bucket map is
// split across. Must be a power of two so shard selection is a cheap mask.
const shardCount = 32

// bucket is a single fixed-window counter.
type bucket struct {
	count       uint32
	windowStart time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// RateLimiter implements ratelimit.Limiter with a map sharded by the
// xxhash of the bucket key, giving per-key atomicity without a
// single global mutex across all clients and methods.
//
// Bucket entries are never evicted by default; callers worried about
// unbounded key-cardinality growth can start the background sweep via
// StartCleanup.
type RateLimiter struct {
	shards [shardCount]*shard

	now func() time.Time

	cleanupInterval time.Duration
	maxEntryAge     time.Duration
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	logger          *slog.Logger
}

// NewRateLimiter creates a rate limiter with no background sweep; bucket
// entries accumulate for the lifetime of the process unless StartCleanup
// is called.
func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	r := &RateLimiter{
		now:      time.Now,
		stopChan: make(chan struct{}),
		logger:   logger,
	}
	for i := range r.shards {
		r.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	return r
}

// shardFor selects the shard for key by hashing it with xxhash and masking
// to shardCount, which is a power of two.
func (r *RateLimiter) shardFor(key string) *shard {
	h := xxhash.Sum64String(key)
	return r.shards[h&(shardCount-1)]
}

// Allow implements ratelimit.Limiter's insert-or-update sequence.
// The read-modify-write on a single key's bucket is atomic because it all
// happens while that key's shard mutex is held.
func (r *RateLimiter) Allow(key string, limit int) ratelimit.Result {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := r.now()

	b, exists := s.buckets[key]
	if !exists {
		b = &bucket{count: 0, windowStart: now}
		s.buckets[key] = b
	}

	if now.Sub(b.windowStart) > 60*time.Second {
		b.count = 1
		b.windowStart = now
		return ratelimit.Result{Admitted: true}
	}

	if b.count >= uint32(limit) {
		return ratelimit.Result{Admitted: false}
	}

	b.count++
	return ratelimit.Result{Admitted: true}
}

// StartCleanup starts a background goroutine that periodically removes
// bucket entries whose window elapsed more than maxEntryAge ago. Useful
// for deployments where x-forwarded-for is attacker-controlled and key
// cardinality could otherwise grow without bound; disabled (not called)
// by default.
func (r *RateLimiter) StartCleanup(ctx context.Context, cleanupInterval, maxEntryAge time.Duration) {
	r.cleanupInterval = cleanupInterval
	r.maxEntryAge = maxEntryAge

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

// cleanup sweeps every shard and removes buckets whose window is older
// than maxEntryAge.
func (r *RateLimiter) cleanup() {
	cutoff := r.now().Add(-r.maxEntryAge)
	removed := 0

	for _, s := range r.shards {
		s.mu.Lock()
		for key, b := range s.buckets {
			if b.windowStart.Before(cutoff) {
				delete(s.buckets, key)
				removed++
			}
		}
		s.mu.Unlock()
	}

	if removed > 0 && r.logger != nil {
		r.logger.Debug("rate limiter cleanup completed", "removed_keys", removed)
	}
}

// Stop gracefully stops the cleanup goroutine, if started. Safe to call
// multiple times and safe to call even if StartCleanup was never called.
func (r *RateLimiter) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Size returns the total number of tracked bucket keys across all shards.
// Useful for tests and monitoring.
func (r *RateLimiter) Size() int {
	total := 0
	for _, s := range r.shards {
		s.mu.Lock()
		total += len(s.buckets)
		s.mu.Unlock()
	}
	return total
}

var _ ratelimit.Limiter = (*RateLimiter)(nil)
