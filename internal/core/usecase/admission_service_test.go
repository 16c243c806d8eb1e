package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatgrid/botgate/internal/core/domain"
)

func newAdmissionService(t *testing.T, store *memoryStore, clock *fakeClock, metrics *countingMetrics) *AdmissionService {
	t.Helper()
	controller := NewAccessController(store, 5*time.Minute, clock, metrics, nil)
	limiter, err := NewRateLimiter(3, 10*time.Second, time.Hour, clock, metrics)
	if err != nil {
		t.Fatalf("new rate limiter: %v", err)
	}
	return NewAdmissionService(controller, limiter, metrics)
}

func TestDecideAllowsAndCounts(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	metrics := &countingMetrics{}
	service := newAdmissionService(t, newMemoryStore(), clock, metrics)

	decision, err := service.Decide(context.Background(), domain.InboundEvent{
		WorkspaceID: "ws-1",
		SubjectID:   "user-1",
		Timestamp:   clock.Now(),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.RateLimited {
		t.Fatal("first event must not be rate limited")
	}
	if decision.Prefix != domain.DefaultPrefix {
		t.Fatalf("expected default prefix, got %q", decision.Prefix)
	}
	if metrics.commands != 1 {
		t.Fatalf("expected 1 command counted, got %d", metrics.commands)
	}
}

func TestDecideMarksRateLimitedWithRetryAfter(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	metrics := &countingMetrics{}
	service := newAdmissionService(t, newMemoryStore(), clock, metrics)
	event := domain.InboundEvent{WorkspaceID: "ws-1", SubjectID: "user-1", Timestamp: clock.Now()}

	var decision domain.Decision
	var err error
	for i := 0; i < 4; i++ {
		decision, err = service.Decide(context.Background(), event)
		if err != nil {
			t.Fatalf("decide %d: %v", i, err)
		}
	}
	if !decision.RateLimited {
		t.Fatal("fourth event within the window must be rate limited")
	}
	if decision.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", decision.RetryAfter)
	}
	if metrics.denials != 1 {
		t.Fatalf("expected 1 denial counted, got %d", metrics.denials)
	}
}

func TestDecideSurfacesValidationErrors(t *testing.T) {
	clock := newFakeClock(time.Now().UTC())
	metrics := &countingMetrics{}
	service := newAdmissionService(t, newMemoryStore(), clock, metrics)

	_, err := service.Decide(context.Background(), domain.InboundEvent{WorkspaceID: "ws-1", SubjectID: ""})
	if !errors.Is(err, domain.ErrInvalidSubjectID) {
		t.Fatalf("expected ErrInvalidSubjectID, got %v", err)
	}
	if metrics.errors != 1 {
		t.Fatalf("expected 1 error counted, got %d", metrics.errors)
	}
}

func TestDecideBypassSkipsNothingOnRateLimit(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	metrics := &countingMetrics{}
	store := newMemoryStore()
	controller := NewAccessController(store, 5*time.Minute, clock, metrics, nil)
	limiter, err := NewRateLimiter(1, 10*time.Second, time.Hour, clock, metrics)
	if err != nil {
		t.Fatalf("new rate limiter: %v", err)
	}
	if _, err := controller.Grant(context.Background(), "user-1", "admin-1", "permanent"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	service := NewAdmissionService(controller, limiter, metrics)
	event := domain.InboundEvent{WorkspaceID: "ws-1", SubjectID: "user-1", Timestamp: clock.Now()}

	if _, err := service.Decide(context.Background(), event); err != nil {
		t.Fatalf("first decide: %v", err)
	}
	decision, err := service.Decide(context.Background(), event)
	if err != nil {
		t.Fatalf("second decide: %v", err)
	}
	if !decision.BypassesPrefix {
		t.Fatal("grant bypass must be reported even when rate limited")
	}
	if !decision.RateLimited {
		t.Fatal("rate limit applies to granted subjects too")
	}
}
