package domain

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidWorkspaceID   = errors.New("invalid workspace id")
	ErrInvalidSubjectID     = errors.New("invalid subject id")
	ErrInvalidDurationToken = errors.New("invalid duration token")
	ErrStoreUnavailable     = errors.New("settings store unavailable")
)

// DefaultPrefix is the command prefix used when a workspace has none
// configured.
const DefaultPrefix = "&"

// ErrSettingsViolation reports a settings document that failed JSON Schema
// validation at the admin boundary.
type ErrSettingsViolation struct {
	Errors []string
}

func (e *ErrSettingsViolation) Error() string {
	if len(e.Errors) == 0 {
		return "settings document violates schema"
	}
	return "settings document violates schema: " + strings.Join(e.Errors, "; ")
}

// CurrentSettingsVersion is bumped whenever a new settings field is
// introduced. Migrate upgrades older snapshots additively on read.
const CurrentSettingsVersion = 2

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// WorkspaceSettings is a per-workspace configuration snapshot. It is created
// lazily on the first admin write; reads of unknown workspaces yield the
// defaults. Fields are unset rather than rows deleted.
type WorkspaceSettings struct {
	WorkspaceID   string
	Prefix        string
	Features      map[string]json.RawMessage
	SchemaVersion int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DefaultSettings returns the snapshot served for a workspace that has never
// been configured.
func DefaultSettings(workspaceID string) WorkspaceSettings {
	return WorkspaceSettings{
		WorkspaceID:   workspaceID,
		Prefix:        DefaultPrefix,
		Features:      map[string]json.RawMessage{},
		SchemaVersion: CurrentSettingsVersion,
	}
}

// Migrate upgrades a stored snapshot to the current schema version. Each step
// is additive: missing fields gain their defaults and existing fields are
// never dropped, so old and new shard processes can read the same rows.
func (s WorkspaceSettings) Migrate() WorkspaceSettings {
	if s.Features == nil {
		s.Features = map[string]json.RawMessage{}
	}
	if s.SchemaVersion < 2 && s.Prefix == "" {
		// Version 1 rows predate the prefix column.
		s.Prefix = DefaultPrefix
	}
	s.SchemaVersion = CurrentSettingsVersion
	return s
}

// EffectivePrefix resolves the configured prefix, falling back to the system
// default.
func (s WorkspaceSettings) EffectivePrefix() string {
	if s.Prefix == "" {
		return DefaultPrefix
	}
	return s.Prefix
}

func (s WorkspaceSettings) Validate() error {
	return ValidateWorkspaceID(s.WorkspaceID)
}

func ValidateWorkspaceID(id string) error {
	if id == "" || !idPattern.MatchString(id) {
		return ErrInvalidWorkspaceID
	}
	return nil
}

func ValidateSubjectID(id string) error {
	if id == "" || !idPattern.MatchString(id) {
		return ErrInvalidSubjectID
	}
	return nil
}

// SettingsPatch is a partial admin update. Nil fields are left untouched;
// a present-but-empty prefix unsets the workspace prefix back to the
// system default.
type SettingsPatch struct {
	Prefix   *string
	Features map[string]json.RawMessage
}

// Apply merges the patch into an existing snapshot.
func (p SettingsPatch) Apply(s WorkspaceSettings) WorkspaceSettings {
	s = s.Migrate()
	if p.Prefix != nil {
		s.Prefix = *p.Prefix
	}
	for name, value := range p.Features {
		if value == nil {
			delete(s.Features, name)
			continue
		}
		s.Features[name] = value
	}
	return s
}
