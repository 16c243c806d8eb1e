package ports

import (
	"context"

	"github.com/chatgrid/botgate/internal/core/domain"
)

// AuditNotifier pushes audit trail additions to an external receiver.
// Delivery failures are logged by the caller, never propagated.
type AuditNotifier interface {
	Notify(ctx context.Context, notification domain.AuditNotification) error
}
