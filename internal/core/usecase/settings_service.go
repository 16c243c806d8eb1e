package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/chatgrid/botgate/internal/core/domain"
	"github.com/chatgrid/botgate/internal/core/ports"
)

// settingsPatchSchema constrains admin settings updates. Feature flags are
// open-ended by design; the schema only pins their value types so a typo'd
// document can't poison every shard's cache.
const settingsPatchSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"prefix": {
			"type": "string",
			"maxLength": 8
		},
		"features": {
			"type": "object",
			"additionalProperties": {
				"type": ["boolean", "number", "string", "null"]
			}
		}
	}
}`

type settingsPatchDoc struct {
	Prefix   *string                    `json:"prefix"`
	Features map[string]json.RawMessage `json:"features"`
}

// SettingsService is the admin surface for workspace settings. Reads go
// through the same cache the resolver uses; writes validate the patch
// document against the embedded schema, merge it into the stored snapshot,
// and invalidate the cache so the change is visible on the next read.
type SettingsService struct {
	store  ports.SettingsStore
	cache  *ReadCache[domain.WorkspaceSettings]
	schema *santhosh.Schema
}

func NewSettingsService(store ports.SettingsStore, cache *ReadCache[domain.WorkspaceSettings]) (*SettingsService, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource("settings-patch.json", bytes.NewReader([]byte(settingsPatchSchema))); err != nil {
		return nil, fmt.Errorf("add settings schema: %w", err)
	}
	schema, err := compiler.Compile("settings-patch.json")
	if err != nil {
		return nil, fmt.Errorf("compile settings schema: %w", err)
	}
	return &SettingsService{store: store, cache: cache, schema: schema}, nil
}

func (s *SettingsService) Get(ctx context.Context, workspaceID string) (domain.WorkspaceSettings, error) {
	if err := domain.ValidateWorkspaceID(workspaceID); err != nil {
		return domain.WorkspaceSettings{}, err
	}
	settings, _, err := s.cache.Get(ctx, workspaceID)
	return settings, err
}

// Update applies a partial settings document. The workspace row is created
// lazily on the first write; fields are only ever unset, never deleted.
func (s *SettingsService) Update(ctx context.Context, workspaceID string, patchJSON json.RawMessage) (domain.WorkspaceSettings, error) {
	if err := domain.ValidateWorkspaceID(workspaceID); err != nil {
		return domain.WorkspaceSettings{}, err
	}
	if err := s.validate(patchJSON); err != nil {
		return domain.WorkspaceSettings{}, err
	}

	var doc settingsPatchDoc
	if err := json.Unmarshal(patchJSON, &doc); err != nil {
		return domain.WorkspaceSettings{}, fmt.Errorf("decode settings patch: %w", err)
	}
	patch := domain.SettingsPatch{Prefix: doc.Prefix, Features: map[string]json.RawMessage{}}
	for name, value := range doc.Features {
		if bytes.Equal(value, []byte("null")) {
			patch.Features[name] = nil
			continue
		}
		patch.Features[name] = value
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	current, err := s.store.GetSettings(storeCtx, workspaceID)
	if errors.Is(err, domain.ErrNotFound) {
		current = domain.DefaultSettings(workspaceID)
	} else if err != nil {
		return domain.WorkspaceSettings{}, fmt.Errorf("load settings: %w", err)
	}

	updated, err := s.store.UpsertSettings(storeCtx, patch.Apply(current))
	if err != nil {
		return domain.WorkspaceSettings{}, fmt.Errorf("upsert settings: %w", err)
	}
	s.cache.Invalidate(workspaceID)
	return updated, nil
}

func (s *SettingsService) validate(patchJSON json.RawMessage) error {
	if !json.Valid(patchJSON) {
		return &domain.ErrSettingsViolation{Errors: []string{"patch must be valid json"}}
	}
	var v any
	if err := json.Unmarshal(patchJSON, &v); err != nil {
		return &domain.ErrSettingsViolation{Errors: []string{err.Error()}}
	}
	if err := s.schema.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &domain.ErrSettingsViolation{Errors: collectValidationErrors(ve)}
		}
		return &domain.ErrSettingsViolation{Errors: []string{err.Error()}}
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}
