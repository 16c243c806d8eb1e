package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMigrateUpgradesOldSnapshots(t *testing.T) {
	old := WorkspaceSettings{WorkspaceID: "ws-1", SchemaVersion: 1}

	migrated := old.Migrate()
	if migrated.SchemaVersion != CurrentSettingsVersion {
		t.Fatalf("expected version %d, got %d", CurrentSettingsVersion, migrated.SchemaVersion)
	}
	if migrated.Prefix != DefaultPrefix {
		t.Fatalf("version 1 rows must gain the default prefix, got %q", migrated.Prefix)
	}
	if migrated.Features == nil {
		t.Fatal("features map must be initialized")
	}

	// A configured prefix survives the upgrade.
	configured := WorkspaceSettings{WorkspaceID: "ws-1", Prefix: "!", SchemaVersion: 1}.Migrate()
	if configured.Prefix != "!" {
		t.Fatalf("existing prefix must survive migration, got %q", configured.Prefix)
	}
}

func TestSettingsPatchApply(t *testing.T) {
	base := DefaultSettings("ws-1")
	base.Features["welcome"] = json.RawMessage("true")
	base.Features["quota"] = json.RawMessage("5")

	newPrefix := "!"
	patched := SettingsPatch{
		Prefix: &newPrefix,
		Features: map[string]json.RawMessage{
			"welcome": nil,
			"locale":  json.RawMessage(`"lt"`),
		},
	}.Apply(base)

	if patched.Prefix != "!" {
		t.Fatalf("expected patched prefix, got %q", patched.Prefix)
	}
	if _, ok := patched.Features["welcome"]; ok {
		t.Fatal("nil feature value must unset the feature")
	}
	if string(patched.Features["quota"]) != "5" {
		t.Fatal("untouched features must survive")
	}
	if string(patched.Features["locale"]) != `"lt"` {
		t.Fatal("new features must be added")
	}

	// Nil prefix leaves the stored value alone.
	untouched := SettingsPatch{}.Apply(patched)
	if untouched.Prefix != "!" {
		t.Fatalf("empty patch must not change the prefix, got %q", untouched.Prefix)
	}
}

func TestEffectivePrefixFallsBack(t *testing.T) {
	if got := (WorkspaceSettings{}).EffectivePrefix(); got != DefaultPrefix {
		t.Fatalf("expected default prefix, got %q", got)
	}
	if got := (WorkspaceSettings{Prefix: "!"}).EffectivePrefix(); got != "!" {
		t.Fatalf("expected configured prefix, got %q", got)
	}
}

func TestValidateIDs(t *testing.T) {
	for _, id := range []string{"ws-1", "user_1", "a.b:c", "ABC-123"} {
		if err := ValidateWorkspaceID(id); err != nil {
			t.Fatalf("%q: %v", id, err)
		}
		if err := ValidateSubjectID(id); err != nil {
			t.Fatalf("%q: %v", id, err)
		}
	}
	for _, id := range []string{"", "has space", "emojié", "semi;colon"} {
		if err := ValidateWorkspaceID(id); !errors.Is(err, ErrInvalidWorkspaceID) {
			t.Fatalf("%q: expected ErrInvalidWorkspaceID, got %v", id, err)
		}
		if err := ValidateSubjectID(id); !errors.Is(err, ErrInvalidSubjectID) {
			t.Fatalf("%q: expected ErrInvalidSubjectID, got %v", id, err)
		}
	}
}
