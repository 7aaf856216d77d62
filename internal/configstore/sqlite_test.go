package configstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-edge/internal/transport"

	_ "github.com/nerrad567/gray-logic-edge/migrations"
)

func openTestStore(t *testing.T) (*SQLiteStore, *database.DB) {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "edge.db"), WALMode: true, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteStore(db), db
}

var (
	hostKey = transport.ConfigKey{Scope: transport.ScopeDevice, Store: transport.StoreConfig, Key: "broker-host"}
	keyKey  = transport.ConfigKey{Scope: transport.ScopeDevice, Store: transport.StoreSecret, Key: "private-key"}
	caKey   = transport.ConfigKey{Scope: transport.ScopeAccount, Store: transport.StoreConfig, Key: "root-ca"}
)

func TestSQLiteStore_PutFetch(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, hostKey, []byte("mqtt.example.com")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, keyKey, []byte("3082")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	items, err := s.Fetch(ctx, []transport.ConfigKey{hostKey, caKey, keyKey, {Key: "bad"}})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	tests := []struct {
		name   string
		result transport.ConfigKeyResult
		data   string
	}{
		{"broker-host", transport.ConfigKeyOK, "mqtt.example.com"},
		{"root-ca", transport.ConfigKeyNotFound, ""},
		{"private-key", transport.ConfigKeyOK, "3082"},
		{"invalid key", transport.ConfigKeyReadFailed, ""},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if items[i].Result != tt.result {
				t.Errorf("Result = %v, want %v", items[i].Result, tt.result)
			}
			if string(items[i].Data) != tt.data {
				t.Errorf("Data = %q, want %q", items[i].Data, tt.data)
			}
		})
	}
}

func TestSQLiteStore_ScopeAndStoreAreDistinct(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	secretHost := hostKey
	secretHost.Store = transport.StoreSecret
	if err := s.Put(ctx, secretHost, []byte("secret-host")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	items, err := s.Fetch(ctx, []transport.ConfigKey{hostKey})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if items[0].Result != transport.ConfigKeyNotFound {
		t.Errorf("Result = %v, want not_found", items[0].Result)
	}
}

func TestSQLiteStore_PutReplaces(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"old", "new"} {
		if err := s.Put(ctx, hostKey, []byte(v)); err != nil {
			t.Fatalf("Put(%s) error = %v", v, err)
		}
	}
	items, err := s.Fetch(ctx, []transport.ConfigKey{hostKey})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(items[0].Data) != "new" {
		t.Errorf("Data = %q, want new", items[0].Data)
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, hostKey, []byte("x")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Delete(ctx, hostKey); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, hostKey); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	items, err := s.Fetch(ctx, []transport.ConfigKey{hostKey})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if items[0].Result != transport.ConfigKeyNotFound {
		t.Errorf("Result = %v, want not_found", items[0].Result)
	}
}

func TestSQLiteStore_InvalidPut(t *testing.T) {
	s, _ := openTestStore(t)
	err := s.Put(context.Background(), transport.ConfigKey{Scope: transport.ScopeDevice, Store: transport.StoreConfig}, []byte("x"))
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Put() error = %v, want ErrInvalidKey", err)
	}
}

func TestSQLiteStore_ClosedDatabaseUnavailable(t *testing.T) {
	s, db := openTestStore(t)
	db.Close()

	_, err := s.Fetch(context.Background(), []transport.ConfigKey{hostKey})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Fetch() error = %v, want ErrUnavailable", err)
	}
}
