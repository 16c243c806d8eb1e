package usecase

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chatgrid/botgate/internal/core/domain"
	"github.com/chatgrid/botgate/internal/core/ports"
)

// ExpirySweeper periodically retires grants whose expiry has passed. Every
// shard runs its own sweeper against the shared store; the races that
// creates are benign because a delete of an already-deleted grant is a
// no-op, so double-sweeping never double-counts or errors.
type ExpirySweeper struct {
	store      ports.SettingsStore
	grantCache *ReadCache[*domain.AccessGrant]
	notifier   ports.AuditNotifier
	clock      domain.Clock
	metrics    ports.MetricsRecorder
	interval   time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sweepRunsTotal    atomic.Int64
	sweepRemovedTotal atomic.Int64
	sweepErrorsTotal  atomic.Int64
}

type ExpirySweeperMetrics struct {
	SweepRunsTotal    int64
	SweepRemovedTotal int64
	SweepErrorsTotal  int64
}

func NewExpirySweeper(store ports.SettingsStore, grantCache *ReadCache[*domain.AccessGrant], notifier ports.AuditNotifier, clock domain.Clock, metrics ports.MetricsRecorder, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ExpirySweeper{
		store:      store,
		grantCache: grantCache,
		notifier:   notifier,
		clock:      clock,
		metrics:    metrics,
		interval:   interval,
	}
}

// Start launches the periodic loop. Construction never starts it: the task
// is owned by the process supervisor, which also cancels it on shutdown.
func (s *ExpirySweeper) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)
}

// Close cancels the loop and waits for the in-flight batch to finish or
// abort cleanly. Each delete is a single atomic row operation, so there is
// no half-deleted state to leave behind.
func (s *ExpirySweeper) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *ExpirySweeper) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			log.Printf("sweep error: %v", err)
			s.sweepErrorsTotal.Add(1)
			s.metrics.ErrorOccurred()
		}
	}
}

// Sweep removes every grant with a non-nil expiry in the past, writing one
// sweep audit record per row actually deleted and invalidating the cached
// entry. Returns the number of grants removed.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	s.sweepRunsTotal.Add(1)
	now := s.clock.Now()

	listCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	expired, err := s.store.ListExpiredGrants(listCtx, now)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list expired grants: %w", err)
	}

	removed := 0
	for _, grant := range expired {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}

		deleteCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
		deleted, err := s.store.DeleteGrant(deleteCtx, grant.SubjectID)
		if err != nil {
			cancel()
			return removed, fmt.Errorf("delete expired grant %s: %w", grant.SubjectID, err)
		}
		s.grantCache.Invalidate(grant.SubjectID)
		if !deleted {
			// Another shard swept it first.
			cancel()
			continue
		}

		record := domain.AuditRecord{
			EventID:  uuid.NewString(),
			Action:   domain.AuditActionSweep,
			ActorID:  "sweeper",
			TargetID: grant.SubjectID,
			Details:  "expired: " + grant.DurationToken,
			At:       now,
		}
		if err := s.store.AppendAudit(deleteCtx, record); err != nil {
			cancel()
			return removed, fmt.Errorf("append sweep audit: %w", err)
		}
		notify(deleteCtx, s.notifier, record)
		cancel()
		removed++
	}

	if removed > 0 {
		s.metrics.SweepRemoved(removed)
		s.sweepRemovedTotal.Add(int64(removed))
		log.Printf("sweep removed=%d", removed)
	}
	return removed, nil
}

func (s *ExpirySweeper) Metrics() ExpirySweeperMetrics {
	return ExpirySweeperMetrics{
		SweepRunsTotal:    s.sweepRunsTotal.Load(),
		SweepRemovedTotal: s.sweepRemovedTotal.Load(),
		SweepErrorsTotal:  s.sweepErrorsTotal.Load(),
	}
}
