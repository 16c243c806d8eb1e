package usecase

import (
	"context"

	"github.com/chatgrid/botgate/internal/core/domain"
	"github.com/chatgrid/botgate/internal/core/ports"
)

type AuditService struct {
	store ports.SettingsStore
}

func NewAuditService(store ports.SettingsStore) *AuditService {
	return &AuditService{store: store}
}

func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	if filter.TargetID != "" {
		if err := domain.ValidateSubjectID(filter.TargetID); err != nil {
			return nil, err
		}
	}
	switch filter.Action {
	case "", domain.AuditActionGrant, domain.AuditActionRevoke, domain.AuditActionSweep:
	default:
		return nil, domain.ErrInvalidAuditAction
	}
	if filter.Limit <= 0 {
		filter.Limit = 25
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	return s.store.ListAudit(storeCtx, filter)
}
