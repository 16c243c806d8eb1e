package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/chatgrid/botgate/internal/core/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingMetrics struct {
	mu           sync.Mutex
	hits         int
	misses       int
	commands     int
	errors       int
	denials      int
	sweepRemoved int
	observations int
}

func (m *countingMetrics) CacheHit() {
	m.mu.Lock()
	m.hits++
	m.mu.Unlock()
}

func (m *countingMetrics) CacheMiss() {
	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
}

func (m *countingMetrics) CommandProcessed() {
	m.mu.Lock()
	m.commands++
	m.mu.Unlock()
}

func (m *countingMetrics) ErrorOccurred() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

func (m *countingMetrics) RateLimitDenied() {
	m.mu.Lock()
	m.denials++
	m.mu.Unlock()
}

func (m *countingMetrics) SweepRemoved(count int) {
	m.mu.Lock()
	m.sweepRemoved += count
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveStoreLatency(time.Duration) {
	m.mu.Lock()
	m.observations++
	m.mu.Unlock()
}

type stubStore struct {
	getSettingsFn       func(ctx context.Context, workspaceID string) (domain.WorkspaceSettings, error)
	upsertSettingsFn    func(ctx context.Context, settings domain.WorkspaceSettings) (domain.WorkspaceSettings, error)
	getGrantFn          func(ctx context.Context, subjectID string) (domain.AccessGrant, error)
	upsertGrantFn       func(ctx context.Context, grant domain.AccessGrant) error
	deleteGrantFn       func(ctx context.Context, subjectID string) (bool, error)
	listGrantsFn        func(ctx context.Context) ([]domain.AccessGrant, error)
	listExpiredGrantsFn func(ctx context.Context, now time.Time) ([]domain.AccessGrant, error)
	appendAuditFn       func(ctx context.Context, record domain.AuditRecord) error
	listAuditFn         func(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error)
}

func (s *stubStore) GetSettings(ctx context.Context, workspaceID string) (domain.WorkspaceSettings, error) {
	if s.getSettingsFn != nil {
		return s.getSettingsFn(ctx, workspaceID)
	}
	return domain.WorkspaceSettings{}, domain.ErrNotFound
}

func (s *stubStore) UpsertSettings(ctx context.Context, settings domain.WorkspaceSettings) (domain.WorkspaceSettings, error) {
	if s.upsertSettingsFn != nil {
		return s.upsertSettingsFn(ctx, settings)
	}
	return settings, nil
}

func (s *stubStore) GetGrant(ctx context.Context, subjectID string) (domain.AccessGrant, error) {
	if s.getGrantFn != nil {
		return s.getGrantFn(ctx, subjectID)
	}
	return domain.AccessGrant{}, domain.ErrNotFound
}

func (s *stubStore) UpsertGrant(ctx context.Context, grant domain.AccessGrant) error {
	if s.upsertGrantFn != nil {
		return s.upsertGrantFn(ctx, grant)
	}
	return nil
}

func (s *stubStore) DeleteGrant(ctx context.Context, subjectID string) (bool, error) {
	if s.deleteGrantFn != nil {
		return s.deleteGrantFn(ctx, subjectID)
	}
	return true, nil
}

func (s *stubStore) ListGrants(ctx context.Context) ([]domain.AccessGrant, error) {
	if s.listGrantsFn != nil {
		return s.listGrantsFn(ctx)
	}
	return nil, nil
}

func (s *stubStore) ListExpiredGrants(ctx context.Context, now time.Time) ([]domain.AccessGrant, error) {
	if s.listExpiredGrantsFn != nil {
		return s.listExpiredGrantsFn(ctx, now)
	}
	return nil, nil
}

func (s *stubStore) AppendAudit(ctx context.Context, record domain.AuditRecord) error {
	if s.appendAuditFn != nil {
		return s.appendAuditFn(ctx, record)
	}
	return nil
}

func (s *stubStore) ListAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	if s.listAuditFn != nil {
		return s.listAuditFn(ctx, filter)
	}
	return nil, nil
}
