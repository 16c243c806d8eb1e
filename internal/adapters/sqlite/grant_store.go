package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chatgrid/botgate/internal/adapters/sqlite/gormsqlite"
	"github.com/chatgrid/botgate/internal/core/domain"
)

type grantModel struct {
	SubjectID     string     `gorm:"column:subject_id;primaryKey"`
	GrantedBy     string     `gorm:"column:granted_by;not null"`
	GrantedAt     time.Time  `gorm:"column:granted_at;not null"`
	ExpiresAt     *time.Time `gorm:"column:expires_at"`
	DurationToken string     `gorm:"column:duration_token;not null"`
}

func (grantModel) TableName() string {
	return "access_grants"
}

func (s *Store) GetGrant(ctx context.Context, subjectID string) (domain.AccessGrant, error) {
	var model grantModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("subject_id = ?", subjectID).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AccessGrant{}, domain.ErrNotFound
		}
		return domain.AccessGrant{}, fmt.Errorf("get grant: %w", err)
	}
	return grantToDomain(model), nil
}

func (s *Store) UpsertGrant(ctx context.Context, grant domain.AccessGrant) error {
	model := grantModel{
		SubjectID:     grant.SubjectID,
		GrantedBy:     grant.GrantedBy,
		GrantedAt:     grant.GrantedAt,
		ExpiresAt:     grant.ExpiresAt,
		DurationToken: grant.DurationToken,
	}

	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"granted_by", "granted_at", "expires_at", "duration_token"}),
		}).Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

func (s *Store) DeleteGrant(ctx context.Context, subjectID string) (bool, error) {
	var affected int64
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("subject_id = ?", subjectID).Delete(&grantModel{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete grant: %w", err)
	}
	return affected > 0, nil
}

func (s *Store) ListGrants(ctx context.Context) ([]domain.AccessGrant, error) {
	var models []grantModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Order("granted_at ASC").Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}

	grants := make([]domain.AccessGrant, 0, len(models))
	for _, model := range models {
		grants = append(grants, grantToDomain(model))
	}
	return grants, nil
}

func (s *Store) ListExpiredGrants(ctx context.Context, now time.Time) ([]domain.AccessGrant, error) {
	var models []grantModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("expires_at IS NOT NULL AND expires_at < ?", now).
			Order("expires_at ASC").Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list expired grants: %w", err)
	}

	grants := make([]domain.AccessGrant, 0, len(models))
	for _, model := range models {
		grants = append(grants, grantToDomain(model))
	}
	return grants, nil
}

func grantToDomain(model grantModel) domain.AccessGrant {
	return domain.AccessGrant{
		SubjectID:     model.SubjectID,
		GrantedBy:     model.GrantedBy,
		GrantedAt:     model.GrantedAt,
		ExpiresAt:     model.ExpiresAt,
		DurationToken: model.DurationToken,
	}
}
