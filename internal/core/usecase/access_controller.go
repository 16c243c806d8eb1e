package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/chatgrid/botgate/internal/core/domain"
	"github.com/chatgrid/botgate/internal/core/ports"
)

// AccessController resolves the effective command prefix for every inbound
// event and owns the grant admin operations. Both lookups it needs on the
// hot path sit behind read-through TTL caches, so the amortized cost is one
// map lookup per event.
type AccessController struct {
	store    ports.SettingsStore
	clock    domain.Clock
	notifier ports.AuditNotifier

	settingsCache *ReadCache[domain.WorkspaceSettings]
	grantCache    *ReadCache[*domain.AccessGrant]
}

func NewAccessController(store ports.SettingsStore, cacheTTL time.Duration, clock domain.Clock, metrics ports.MetricsRecorder, notifier ports.AuditNotifier) *AccessController {
	c := &AccessController{
		store:    store,
		clock:    clock,
		notifier: notifier,
	}

	c.settingsCache = NewReadCache("settings", cacheTTL, clock, metrics, func(ctx context.Context, workspaceID string) (domain.WorkspaceSettings, error) {
		settings, err := store.GetSettings(ctx, workspaceID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.DefaultSettings(workspaceID), nil
		}
		if err != nil {
			return domain.WorkspaceSettings{}, err
		}
		return settings.Migrate(), nil
	})

	// Absence is cached too (nil entry): most subjects hold no grant and
	// the hot path must not hit the store for each of them on every TTL.
	c.grantCache = NewReadCache("grant", cacheTTL, clock, metrics, func(ctx context.Context, subjectID string) (*domain.AccessGrant, error) {
		grant, err := store.GetGrant(ctx, subjectID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &grant, nil
	})

	return c
}

// SettingsCache exposes the workspace settings cache for the settings
// service (write-side invalidation) and the janitor.
func (c *AccessController) SettingsCache() *ReadCache[domain.WorkspaceSettings] {
	return c.settingsCache
}

// GrantCache exposes the grant cache for the sweeper and the janitor.
func (c *AccessController) GrantCache() *ReadCache[*domain.AccessGrant] {
	return c.grantCache
}

// Resolve returns the prefix decision for a (workspace, subject) pair. An
// active grant bypasses the prefix entirely; grant expiry is checked here
// against the clock, never left to the sweeper. Store trouble degrades to
// cached or default values instead of failing the event path.
func (c *AccessController) Resolve(ctx context.Context, workspaceID, subjectID string) (domain.Resolution, error) {
	if err := domain.ValidateSubjectID(subjectID); err != nil {
		return domain.Resolution{}, err
	}
	if workspaceID != "" {
		if err := domain.ValidateWorkspaceID(workspaceID); err != nil {
			return domain.Resolution{}, err
		}
	}

	degraded := false
	grant, stale, err := c.grantCache.Get(ctx, subjectID)
	if err != nil {
		log.Printf("resolve grant subject=%s: %v", subjectID, err)
		degraded = true
	} else if grant != nil && grant.ActiveAt(c.clock.Now()) {
		return domain.Resolution{Prefix: "", BypassesPrefix: true, Degraded: stale}, nil
	} else if stale {
		degraded = true
	}

	if workspaceID == "" {
		return domain.Resolution{Prefix: domain.DefaultPrefix, Degraded: degraded}, nil
	}

	settings, stale, err := c.settingsCache.Get(ctx, workspaceID)
	if err != nil {
		log.Printf("resolve settings workspace=%s: %v", workspaceID, err)
		return domain.Resolution{Prefix: domain.DefaultPrefix, Degraded: true}, nil
	}
	return domain.Resolution{Prefix: settings.EffectivePrefix(), Degraded: degraded || stale}, nil
}

// Grant gives a subject prefix-bypassing access for the given duration
// token. A second grant overwrites the first rather than extending it.
func (c *AccessController) Grant(ctx context.Context, subjectID, actorID, durationToken string) (domain.AccessGrant, error) {
	if err := domain.ValidateSubjectID(subjectID); err != nil {
		return domain.AccessGrant{}, err
	}
	if err := domain.ValidateSubjectID(actorID); err != nil {
		return domain.AccessGrant{}, err
	}

	now := c.clock.Now()
	expiresAt, err := domain.ParseDurationToken(durationToken, now)
	if err != nil {
		return domain.AccessGrant{}, err
	}

	grant := domain.AccessGrant{
		SubjectID:     subjectID,
		GrantedBy:     actorID,
		GrantedAt:     now,
		ExpiresAt:     expiresAt,
		DurationToken: durationToken,
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	if err := c.store.UpsertGrant(storeCtx, grant); err != nil {
		return domain.AccessGrant{}, fmt.Errorf("upsert grant: %w", err)
	}
	// Invalidate as soon as the store mutation lands, even if the audit
	// append fails below: the cache must never disagree with the store.
	c.grantCache.Invalidate(subjectID)

	if err := c.appendAudit(storeCtx, domain.AuditActionGrant, actorID, subjectID, "duration: "+durationToken); err != nil {
		return domain.AccessGrant{}, err
	}
	return grant, nil
}

// Revoke removes a subject's grant. Revoking an absent grant reports false
// without touching the audit trail.
func (c *AccessController) Revoke(ctx context.Context, subjectID, actorID string) (bool, error) {
	if err := domain.ValidateSubjectID(subjectID); err != nil {
		return false, err
	}
	if err := domain.ValidateSubjectID(actorID); err != nil {
		return false, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	removed, err := c.store.DeleteGrant(storeCtx, subjectID)
	if err != nil {
		return false, fmt.Errorf("delete grant: %w", err)
	}
	c.grantCache.Invalidate(subjectID)
	if !removed {
		return false, nil
	}

	if err := c.appendAudit(storeCtx, domain.AuditActionRevoke, actorID, subjectID, ""); err != nil {
		return true, err
	}
	return true, nil
}

func (c *AccessController) ListGrants(ctx context.Context) ([]domain.AccessGrant, error) {
	storeCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	return c.store.ListGrants(storeCtx)
}

func (c *AccessController) appendAudit(ctx context.Context, action, actorID, targetID, details string) error {
	record := domain.AuditRecord{
		EventID:  uuid.NewString(),
		Action:   action,
		ActorID:  actorID,
		TargetID: targetID,
		Details:  details,
		At:       c.clock.Now(),
	}
	if err := c.store.AppendAudit(ctx, record); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	notify(ctx, c.notifier, record)
	return nil
}

// notify pushes an audit record to the configured notifier. Best effort:
// failures are logged and never reach the admin caller.
func notify(ctx context.Context, notifier ports.AuditNotifier, record domain.AuditRecord) {
	if notifier == nil {
		return
	}
	err := notifier.Notify(ctx, domain.AuditNotification{
		EventID:  record.EventID,
		Action:   record.Action,
		ActorID:  record.ActorID,
		TargetID: record.TargetID,
		Details:  record.Details,
		At:       record.At,
	})
	if err != nil {
		log.Printf("audit notify action=%s target=%s: %v", record.Action, record.TargetID, err)
	}
}
