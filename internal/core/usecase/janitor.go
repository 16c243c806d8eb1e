package usecase

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/chatgrid/botgate/internal/core/domain"
)

// Janitor is the periodic maintenance pass: it drops cache entries past TTL
// that were never re-read and evicts idle rate-limit buckets, keeping the
// process memory-bounded with thousands of tenants.
type Janitor struct {
	settingsCache *ReadCache[domain.WorkspaceSettings]
	grantCache    *ReadCache[*domain.AccessGrant]
	limiter       *RateLimiter
	interval      time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewJanitor(settingsCache *ReadCache[domain.WorkspaceSettings], grantCache *ReadCache[*domain.AccessGrant], limiter *RateLimiter, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Janitor{
		settingsCache: settingsCache,
		grantCache:    grantCache,
		limiter:       limiter,
		interval:      interval,
	}
}

func (j *Janitor) Start(parent context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	j.cancel = cancel
	j.wg.Add(1)
	go j.loop(ctx)
}

func (j *Janitor) Close() error {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
	return nil
}

func (j *Janitor) loop(ctx context.Context) {
	defer j.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		j.RunOnce()
	}
}

// RunOnce performs a single maintenance pass and logs what it reclaimed.
func (j *Janitor) RunOnce() {
	settings := j.settingsCache.ExpireStale()
	grants := j.grantCache.ExpireStale()
	buckets := j.limiter.ExpireIdle()
	if settings+grants+buckets > 0 {
		log.Printf("janitor expired settings=%d grants=%d buckets=%d", settings, grants, buckets)
	}
}
