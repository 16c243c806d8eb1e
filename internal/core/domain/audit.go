package domain

import (
	"errors"
	"time"
)

var ErrInvalidAuditAction = errors.New("invalid audit action")

const (
	AuditActionGrant  = "grant"
	AuditActionRevoke = "revoke"
	AuditActionSweep  = "sweep"
)

// AuditRecord is one append-only entry in the grant audit trail. Records are
// never mutated or deleted.
type AuditRecord struct {
	ID       int64
	EventID  string
	Action   string
	ActorID  string
	TargetID string
	Details  string
	At       time.Time
}

// AuditFilter narrows an audit listing. BeforeID pages backwards through
// history: only records with a smaller id are returned.
type AuditFilter struct {
	Action   string
	TargetID string
	BeforeID int64
	Limit    int
}

// AuditNotification is the outbound shape pushed to configured notifiers
// whenever the audit trail grows. Delivery is best effort.
type AuditNotification struct {
	EventID  string    `json:"event_id"`
	Action   string    `json:"action"`
	ActorID  string    `json:"actor_id"`
	TargetID string    `json:"target_id"`
	Details  string    `json:"details,omitempty"`
	At       time.Time `json:"at"`
}
