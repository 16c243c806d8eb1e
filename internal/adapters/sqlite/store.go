package sqlite

import (
	"context"

	"github.com/chatgrid/botgate/internal/adapters/sqlite/gormsqlite"
)

// Store is the SQLite-backed settings store shared by every shard process.
// It implements ports.SettingsStore; the methods live in settings_store.go,
// grant_store.go and audit_store.go.
type Store struct {
	db *gormsqlite.DB
}

func NewStore(db *gormsqlite.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
