package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatgrid/botgate/internal/core/domain"
)

// memoryStore backs controller tests with map state so grant/revoke round
// trips behave like the real store.
type memoryStore struct {
	stubStore
	mu       sync.Mutex
	grants   map[string]domain.AccessGrant
	settings map[string]domain.WorkspaceSettings
	audit    []domain.AuditRecord
}

func newMemoryStore() *memoryStore {
	s := &memoryStore{
		grants:   map[string]domain.AccessGrant{},
		settings: map[string]domain.WorkspaceSettings{},
	}
	s.getGrantFn = func(_ context.Context, subjectID string) (domain.AccessGrant, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		grant, ok := s.grants[subjectID]
		if !ok {
			return domain.AccessGrant{}, domain.ErrNotFound
		}
		return grant, nil
	}
	s.upsertGrantFn = func(_ context.Context, grant domain.AccessGrant) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.grants[grant.SubjectID] = grant
		return nil
	}
	s.deleteGrantFn = func(_ context.Context, subjectID string) (bool, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, ok := s.grants[subjectID]
		delete(s.grants, subjectID)
		return ok, nil
	}
	s.getSettingsFn = func(_ context.Context, workspaceID string) (domain.WorkspaceSettings, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		settings, ok := s.settings[workspaceID]
		if !ok {
			return domain.WorkspaceSettings{}, domain.ErrNotFound
		}
		return settings, nil
	}
	s.appendAuditFn = func(_ context.Context, record domain.AuditRecord) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.audit = append(s.audit, record)
		return nil
	}
	s.listExpiredGrantsFn = func(_ context.Context, now time.Time) ([]domain.AccessGrant, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var expired []domain.AccessGrant
		for _, grant := range s.grants {
			if grant.ExpiresAt != nil && grant.ExpiresAt.Before(now) {
				expired = append(expired, grant)
			}
		}
		return expired, nil
	}
	return s
}

func (s *memoryStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]string, 0, len(s.audit))
	for _, record := range s.audit {
		actions = append(actions, record.Action)
	}
	return actions
}

func TestGrantThenResolveUntilExpiry(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	store := newMemoryStore()
	controller := NewAccessController(store, 2*time.Hour, clock, &countingMetrics{}, nil)

	if _, err := controller.Grant(context.Background(), "user-1", "admin-1", "1h"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	clock.Advance(30 * time.Minute)
	resolution, err := controller.Resolve(context.Background(), "ws-1", "user-1")
	if err != nil {
		t.Fatalf("resolve at t0+30m: %v", err)
	}
	if !resolution.BypassesPrefix || resolution.Prefix != "" {
		t.Fatalf("expected bypass at t0+30m, got %+v", resolution)
	}

	// The grant is still cached and still in the store at t0+61m; only the
	// use-time expiry check stops it.
	clock.Advance(31 * time.Minute)
	resolution, err = controller.Resolve(context.Background(), "ws-1", "user-1")
	if err != nil {
		t.Fatalf("resolve at t0+61m: %v", err)
	}
	if resolution.BypassesPrefix {
		t.Fatal("expired grant must not be honored before the sweeper runs")
	}
	if resolution.Prefix != "&" {
		t.Fatalf("expected default prefix, got %q", resolution.Prefix)
	}
}

func TestResolveUsesWorkspacePrefix(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	store := newMemoryStore()
	store.settings["ws-1"] = domain.WorkspaceSettings{
		WorkspaceID:   "ws-1",
		Prefix:        "!",
		SchemaVersion: domain.CurrentSettingsVersion,
	}
	controller := NewAccessController(store, 5*time.Minute, clock, &countingMetrics{}, nil)

	resolution, err := controller.Resolve(context.Background(), "ws-1", "user-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolution.BypassesPrefix {
		t.Fatal("unexpected bypass")
	}
	if resolution.Prefix != "!" {
		t.Fatalf("expected workspace prefix, got %q", resolution.Prefix)
	}

	// Unconfigured workspace falls back to the system default.
	resolution, err = controller.Resolve(context.Background(), "ws-2", "user-1")
	if err != nil {
		t.Fatalf("resolve unconfigured: %v", err)
	}
	if resolution.Prefix != domain.DefaultPrefix {
		t.Fatalf("expected default prefix, got %q", resolution.Prefix)
	}
}

func TestGrantInvalidatesCachedAbsence(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	store := newMemoryStore()
	controller := NewAccessController(store, 5*time.Minute, clock, &countingMetrics{}, nil)

	// Prime the cache with "no grant".
	resolution, err := controller.Resolve(context.Background(), "ws-1", "user-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolution.BypassesPrefix {
		t.Fatal("unexpected bypass before grant")
	}

	if _, err := controller.Grant(context.Background(), "user-1", "admin-1", "permanent"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	resolution, err = controller.Resolve(context.Background(), "ws-1", "user-1")
	if err != nil {
		t.Fatalf("resolve after grant: %v", err)
	}
	if !resolution.BypassesPrefix {
		t.Fatal("grant must be visible immediately in the same process")
	}
}

func TestGrantInvalidatesCacheWhenAuditFails(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	store := newMemoryStore()
	store.appendAuditFn = func(context.Context, domain.AuditRecord) error {
		return errors.New("audit log down")
	}
	controller := NewAccessController(store, 5*time.Minute, clock, &countingMetrics{}, nil)

	// Prime the cache with "no grant".
	resolution, err := controller.Resolve(context.Background(), "ws-1", "user-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolution.BypassesPrefix {
		t.Fatal("unexpected bypass before grant")
	}

	if _, err := controller.Grant(context.Background(), "user-1", "admin-1", "permanent"); err == nil {
		t.Fatal("expected grant to surface the audit failure")
	}
	if _, ok := store.grants["user-1"]; !ok {
		t.Fatal("expected the grant row to be written before the audit append")
	}

	// The store holds the grant, so the cache must not keep serving the
	// pre-grant absence.
	resolution, err = controller.Resolve(context.Background(), "ws-1", "user-1")
	if err != nil {
		t.Fatalf("resolve after failed audit: %v", err)
	}
	if !resolution.BypassesPrefix {
		t.Fatalf("cache diverged from the store: %+v", resolution)
	}
}

func TestGrantRejectsUnknownDurationToken(t *testing.T) {
	clock := newFakeClock(time.Now().UTC())
	store := newMemoryStore()
	controller := NewAccessController(store, 5*time.Minute, clock, &countingMetrics{}, nil)

	_, err := controller.Grant(context.Background(), "user-1", "admin-1", "3h")
	if !errors.Is(err, domain.ErrInvalidDurationToken) {
		t.Fatalf("expected ErrInvalidDurationToken, got %v", err)
	}
	if len(store.grants) != 0 {
		t.Fatal("rejected grant must not reach the store")
	}
	if len(store.audit) != 0 {
		t.Fatal("rejected grant must not be audited")
	}
}

func TestGrantAndRevokeWriteAudit(t *testing.T) {
	clock := newFakeClock(time.Now().UTC())
	store := newMemoryStore()
	controller := NewAccessController(store, 5*time.Minute, clock, &countingMetrics{}, nil)

	if _, err := controller.Grant(context.Background(), "user-1", "admin-1", "24h"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	removed, err := controller.Revoke(context.Background(), "user-1", "admin-1")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !removed {
		t.Fatal("expected revoke to remove the grant")
	}

	actions := store.auditActions()
	if len(actions) != 2 || actions[0] != domain.AuditActionGrant || actions[1] != domain.AuditActionRevoke {
		t.Fatalf("unexpected audit trail %v", actions)
	}

	// Revoking again is a no-op and leaves no extra audit entry.
	removed, err = controller.Revoke(context.Background(), "user-1", "admin-1")
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if removed {
		t.Fatal("second revoke should report nothing removed")
	}
	if len(store.auditActions()) != 2 {
		t.Fatal("no-op revoke must not be audited")
	}
}

func TestResolveDegradesWhenStoreDown(t *testing.T) {
	clock := newFakeClock(time.Now().UTC())
	down := errors.New("store down")
	store := &stubStore{
		getGrantFn: func(context.Context, string) (domain.AccessGrant, error) {
			return domain.AccessGrant{}, down
		},
		getSettingsFn: func(context.Context, string) (domain.WorkspaceSettings, error) {
			return domain.WorkspaceSettings{}, down
		},
	}
	controller := NewAccessController(store, 5*time.Minute, clock, &countingMetrics{}, nil)

	resolution, err := controller.Resolve(context.Background(), "ws-1", "user-1")
	if err != nil {
		t.Fatalf("resolve must not fail the event path: %v", err)
	}
	if !resolution.Degraded {
		t.Fatal("expected degraded resolution")
	}
	if resolution.Prefix != domain.DefaultPrefix {
		t.Fatalf("expected default prefix fallback, got %q", resolution.Prefix)
	}
}

func TestResolveValidatesSubjectID(t *testing.T) {
	clock := newFakeClock(time.Now().UTC())
	controller := NewAccessController(newMemoryStore(), 5*time.Minute, clock, &countingMetrics{}, nil)

	_, err := controller.Resolve(context.Background(), "ws-1", "bad subject!")
	if !errors.Is(err, domain.ErrInvalidSubjectID) {
		t.Fatalf("expected ErrInvalidSubjectID, got %v", err)
	}
}
