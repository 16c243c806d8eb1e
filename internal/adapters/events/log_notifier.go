package events

import (
	"context"
	"log"

	"github.com/chatgrid/botgate/internal/core/domain"
)

// LogNotifier is the default audit notifier: it writes the notification to
// the process log and nothing else.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(_ context.Context, notification domain.AuditNotification) error {
	log.Printf("audit event_id=%s action=%s actor=%s target=%s details=%q", notification.EventID, notification.Action, notification.ActorID, notification.TargetID, notification.Details)
	return nil
}
