package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/chatgrid/botgate/internal/core/domain"
	"github.com/chatgrid/botgate/internal/core/ports"
)

const (
	storeCallTimeout  = 5 * time.Second
	storeRetryBackoff = 250 * time.Millisecond
)

type cacheEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

// ReadCache is a read-through TTL cache in front of the settings store. An
// entry is a valid hit only while now-fetchedAt < ttl; anything older is
// treated as absent and triggers exactly one store round trip. When that
// round trip fails the last known value is served instead, flagged stale, so
// a slow or briefly unavailable store does not take the event path down.
type ReadCache[T any] struct {
	name    string
	load    func(ctx context.Context, key string) (T, error)
	ttl     time.Duration
	clock   domain.Clock
	metrics ports.MetricsRecorder

	mu      sync.Mutex
	entries map[string]cacheEntry[T]
}

func NewReadCache[T any](name string, ttl time.Duration, clock domain.Clock, metrics ports.MetricsRecorder, load func(ctx context.Context, key string) (T, error)) *ReadCache[T] {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ReadCache[T]{
		name:    name,
		load:    load,
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
		entries: map[string]cacheEntry[T]{},
	}
}

// Get returns the cached value for key, fetching from the store on a miss.
// stale reports that the store was unreachable and an older-than-TTL value
// was served. When the store fails and nothing was ever cached, the error
// wraps domain.ErrStoreUnavailable.
func (c *ReadCache[T]) Get(ctx context.Context, key string) (value T, stale bool, err error) {
	now := c.clock.Now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()

	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		c.metrics.CacheHit()
		return entry.value, false, nil
	}
	c.metrics.CacheMiss()

	loaded, loadErr := c.loadWithRetry(ctx, key)
	if loadErr != nil {
		// Serve the physically-present entry even past TTL rather than
		// fail the event path; the caller flags the decision degraded.
		if ok {
			return entry.value, true, nil
		}
		var zero T
		return zero, false, fmt.Errorf("%s %q: %w: %s", c.name, key, domain.ErrStoreUnavailable, loadErr)
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry[T]{value: loaded, fetchedAt: c.clock.Now()}
	c.mu.Unlock()
	return loaded, false, nil
}

// Invalidate removes the entry unconditionally. Called after every admin
// write so the next read in this process observes the new value.
func (c *ReadCache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// ExpireStale drops entries past TTL that were never re-read, bounding
// memory across thousands of tenants. Returns the number removed.
func (c *ReadCache[T]) ExpireStale() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.fetchedAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *ReadCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// loadWithRetry performs the store round trip with a per-call timeout. A
// timed-out call gets one retry after a constant backoff before the caller
// falls back to stale-or-unavailable semantics.
func (c *ReadCache[T]) loadWithRetry(ctx context.Context, key string) (T, error) {
	var value T
	backoff := retry.WithMaxRetries(1, retry.NewConstant(storeRetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
		defer cancel()

		start := time.Now()
		loaded, err := c.load(callCtx, key)
		c.metrics.ObserveStoreLatency(time.Since(start))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return retry.RetryableError(err)
			}
			return err
		}
		value = loaded
		return nil
	})
	return value, err
}
