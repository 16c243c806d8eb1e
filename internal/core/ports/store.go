package ports

import (
	"context"
	"time"

	"github.com/chatgrid/botgate/internal/core/domain"
)

// SettingsStore is the durable source of truth shared by all shard
// processes. Implementations return domain.ErrNotFound for missing rows;
// callers attach timeouts via the context.
type SettingsStore interface {
	GetSettings(ctx context.Context, workspaceID string) (domain.WorkspaceSettings, error)
	UpsertSettings(ctx context.Context, settings domain.WorkspaceSettings) (domain.WorkspaceSettings, error)

	GetGrant(ctx context.Context, subjectID string) (domain.AccessGrant, error)
	UpsertGrant(ctx context.Context, grant domain.AccessGrant) error
	// DeleteGrant reports whether a row was actually removed. Deleting a
	// missing grant is not an error; concurrent sweeps race benignly.
	DeleteGrant(ctx context.Context, subjectID string) (bool, error)
	ListGrants(ctx context.Context) ([]domain.AccessGrant, error)
	ListExpiredGrants(ctx context.Context, now time.Time) ([]domain.AccessGrant, error)

	AppendAudit(ctx context.Context, record domain.AuditRecord) error
	ListAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error)
}
