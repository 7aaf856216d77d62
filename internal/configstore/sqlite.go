package configstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// SQLiteStore serves items from the config_items table.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore wraps an open, migrated database. The store does not own
// db; Close is a no-op.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Fetch implements Store.
func (s *SQLiteStore) Fetch(ctx context.Context, keys []transport.ConfigKey) ([]Item, error) {
	items := make([]Item, len(keys))
	for i, k := range keys {
		if err := validateKey(k); err != nil {
			items[i] = Item{Result: transport.ConfigKeyReadFailed}
			continue
		}

		var value []byte
		err := s.db.QueryRowContext(ctx,
			"SELECT value FROM config_items WHERE scope = ? AND store = ? AND key = ?",
			k.Scope.String(), k.Store.String(), k.Key,
		).Scan(&value)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			items[i] = Item{Result: transport.ConfigKeyNotFound}
		case err != nil:
			return nil, fmt.Errorf("%w: reading %s: %w", ErrUnavailable, k.Key, err)
		default:
			items[i] = Item{Result: transport.ConfigKeyOK, Data: value}
		}
	}
	return items, nil
}

// Put implements Writer, replacing any existing value.
func (s *SQLiteStore) Put(ctx context.Context, key transport.ConfigKey, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config_items (scope, store, key, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (scope, store, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key.Scope.String(), key.Store.String(), key.Key, value,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing %s: %w", key.Key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key transport.ConfigKey) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM config_items WHERE scope = ? AND store = ? AND key = ?",
		key.Scope.String(), key.Store.String(), key.Key,
	)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key.Key, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return nil }
