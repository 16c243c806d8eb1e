package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chatgrid/botgate/internal/adapters/sqlite/gormsqlite"
	"github.com/chatgrid/botgate/internal/core/domain"
)

type settingsModel struct {
	WorkspaceID   string    `gorm:"column:workspace_id;primaryKey"`
	Prefix        string    `gorm:"column:prefix;not null"`
	FeaturesJSON  string    `gorm:"column:features_json;not null"`
	SchemaVersion int       `gorm:"column:schema_version;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

func (settingsModel) TableName() string {
	return "workspace_settings"
}

func (s *Store) GetSettings(ctx context.Context, workspaceID string) (domain.WorkspaceSettings, error) {
	var model settingsModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("workspace_id = ?", workspaceID).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.WorkspaceSettings{}, domain.ErrNotFound
		}
		return domain.WorkspaceSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return settingsToDomain(model)
}

func (s *Store) UpsertSettings(ctx context.Context, settings domain.WorkspaceSettings) (domain.WorkspaceSettings, error) {
	features, err := json.Marshal(settings.Features)
	if err != nil {
		return domain.WorkspaceSettings{}, fmt.Errorf("encode features: %w", err)
	}

	now := time.Now().UTC()
	model := settingsModel{
		WorkspaceID:   settings.WorkspaceID,
		Prefix:        settings.Prefix,
		FeaturesJSON:  string(features),
		SchemaVersion: settings.SchemaVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"prefix", "features_json", "schema_version", "updated_at"}),
		}).Create(&model).Error
	})
	if err != nil {
		return domain.WorkspaceSettings{}, fmt.Errorf("upsert settings: %w", err)
	}

	return s.GetSettings(ctx, settings.WorkspaceID)
}

func settingsToDomain(model settingsModel) (domain.WorkspaceSettings, error) {
	features := map[string]json.RawMessage{}
	if model.FeaturesJSON != "" {
		if err := json.Unmarshal([]byte(model.FeaturesJSON), &features); err != nil {
			return domain.WorkspaceSettings{}, fmt.Errorf("decode features: %w", err)
		}
	}
	return domain.WorkspaceSettings{
		WorkspaceID:   model.WorkspaceID,
		Prefix:        model.Prefix,
		Features:      features,
		SchemaVersion: model.SchemaVersion,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}, nil
}
