package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/chatgrid/botgate/internal/adapters/sqlite/gormsqlite"
	"github.com/chatgrid/botgate/internal/core/domain"
)

type auditModel struct {
	ID       int64     `gorm:"column:id;primaryKey;autoIncrement"`
	EventID  string    `gorm:"column:event_id;not null"`
	Action   string    `gorm:"column:action;not null"`
	ActorID  string    `gorm:"column:actor_id;not null"`
	TargetID string    `gorm:"column:target_id;not null"`
	Details  string    `gorm:"column:details;not null"`
	At       time.Time `gorm:"column:at;not null"`
}

func (auditModel) TableName() string {
	return "audit_log"
}

func (s *Store) AppendAudit(ctx context.Context, record domain.AuditRecord) error {
	model := auditModel{
		EventID:  record.EventID,
		Action:   record.Action,
		ActorID:  record.ActorID,
		TargetID: record.TargetID,
		Details:  record.Details,
		At:       record.At,
	}
	if model.At.IsZero() {
		model.At = time.Now().UTC()
	}

	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	var models []auditModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&auditModel{})
		if filter.Action != "" {
			query = query.Where("action = ?", filter.Action)
		}
		if filter.TargetID != "" {
			query = query.Where("target_id = ?", filter.TargetID)
		}
		if filter.BeforeID > 0 {
			query = query.Where("id < ?", filter.BeforeID)
		}
		return query.Order("id DESC").Limit(filter.Limit).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}

	records := make([]domain.AuditRecord, 0, len(models))
	for _, model := range models {
		records = append(records, domain.AuditRecord{
			ID:       model.ID,
			EventID:  model.EventID,
			Action:   model.Action,
			ActorID:  model.ActorID,
			TargetID: model.TargetID,
			Details:  model.Details,
			At:       model.At,
		})
	}
	return records, nil
}
