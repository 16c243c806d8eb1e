package usecase

import (
	"context"

	"github.com/chatgrid/botgate/internal/core/domain"
	"github.com/chatgrid/botgate/internal/core/ports"
)

// AdmissionService is the entry point for every inbound event: it resolves
// the effective prefix, applies the rate limit, and hands a Decision back to
// the external command dispatcher. It never returns user-facing errors; the
// only errors out of Decide are typed validation failures for the calling
// layer to translate.
type AdmissionService struct {
	controller *AccessController
	limiter    *RateLimiter
	metrics    ports.MetricsRecorder
}

func NewAdmissionService(controller *AccessController, limiter *RateLimiter, metrics ports.MetricsRecorder) *AdmissionService {
	return &AdmissionService{controller: controller, limiter: limiter, metrics: metrics}
}

func (s *AdmissionService) Decide(ctx context.Context, event domain.InboundEvent) (domain.Decision, error) {
	s.metrics.CommandProcessed()

	resolution, err := s.controller.Resolve(ctx, event.WorkspaceID, event.SubjectID)
	if err != nil {
		s.metrics.ErrorOccurred()
		return domain.Decision{}, err
	}

	allowed, retryAfter := s.limiter.Check(event.SubjectID)

	return domain.Decision{
		Prefix:         resolution.Prefix,
		BypassesPrefix: resolution.BypassesPrefix,
		RateLimited:    !allowed,
		RetryAfter:     retryAfter,
		Degraded:       resolution.Degraded,
	}, nil
}
