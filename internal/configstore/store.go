package configstore

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// Item is the stored value of one key.
type Item struct {
	Result transport.ConfigKeyResult
	Data   []byte
}

// Store reads configuration items.
type Store interface {
	// Fetch returns one Item per key, in key order. A non-nil error means
	// the backend could not be read at all.
	Fetch(ctx context.Context, keys []transport.ConfigKey) ([]Item, error)

	// Close releases the backend.
	Close() error
}

// Writer stores configuration items.
type Writer interface {
	Put(ctx context.Context, key transport.ConfigKey, value []byte) error
}

// validateKey rejects keys no backend can address.
func validateKey(k transport.ConfigKey) error {
	if k.Key == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidKey)
	}
	switch k.Scope {
	case transport.ScopeDevice, transport.ScopeAccount:
	default:
		return fmt.Errorf("%w: scope %d", ErrInvalidKey, int(k.Scope))
	}
	switch k.Store {
	case transport.StoreConfig, transport.StoreSecret:
	default:
		return fmt.Errorf("%w: store %d", ErrInvalidKey, int(k.Store))
	}
	return nil
}
