package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/chatgrid/botgate/internal/core/domain"
	"github.com/chatgrid/botgate/internal/core/ports"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// RateLimiter is per-subject token-bucket admission control. It is purely
// in-memory and never performs I/O: buckets refill lazily on each check and
// idle subjects are evicted by the janitor to bound memory.
type RateLimiter struct {
	capacity float64
	rate     float64 // tokens per second
	idleTTL  time.Duration
	clock    domain.Clock
	metrics  ports.MetricsRecorder

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter configures a limiter allowing capacity checks per window
// for each subject. Non-positive parameters are a fatal misconfiguration.
func NewRateLimiter(capacity int, window, idleTTL time.Duration, clock domain.Clock, metrics ports.MetricsRecorder) (*RateLimiter, error) {
	if capacity <= 0 || window <= 0 {
		return nil, fmt.Errorf("rate limiter misconfigured: capacity=%d window=%s", capacity, window)
	}
	if idleTTL <= 0 {
		idleTTL = 5 * time.Minute
	}
	return &RateLimiter{
		capacity: float64(capacity),
		rate:     float64(capacity) / window.Seconds(),
		idleTTL:  idleTTL,
		clock:    clock,
		metrics:  metrics,
		buckets:  map[string]*bucket{},
	}, nil
}

// Check consumes one token for the subject. When the bucket is empty it
// denies with the time until the next token becomes available.
func (l *RateLimiter) Check(subjectID string) (allowed bool, retryAfter time.Duration) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[subjectID]
	if !ok {
		b = &bucket{tokens: l.capacity, lastRefill: now}
		l.buckets[subjectID] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * l.rate
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
	}
	b.lastRefill = now
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	l.metrics.RateLimitDenied()
	wait := (1 - b.tokens) / l.rate
	return false, time.Duration(wait * float64(time.Second))
}

// ExpireIdle evicts buckets that have not been touched for the idle TTL.
func (l *RateLimiter) ExpireIdle() int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for subjectID, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idleTTL {
			delete(l.buckets, subjectID)
			removed++
		}
	}
	return removed
}

func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
