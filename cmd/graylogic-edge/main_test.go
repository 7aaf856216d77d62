package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/audit"
	"github.com/nerrad567/gray-logic-edge/internal/auth"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/database"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv(config.EnvConfigPath, path)
	return path
}

// TestRun_InvalidConfigPath verifies run fails with a missing config file.
func TestRun_InvalidConfigPath(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "/nonexistent/path/edge.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidConfig verifies validation errors stop start-up.
func TestRun_InvalidConfig(t *testing.T) {
	writeConfig(t, `
store:
  backend: etcd
application:
  kind: thermostat
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config")
	}
}

// TestRun_BadSeedFile verifies a missing seed file stops start-up.
func TestRun_BadSeedFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, fmt.Sprintf(`
store:
  backend: sqlite
  seed_file: %q
  database:
    path: %q
api:
  enabled: false
logging:
  level: error
`, filepath.Join(dir, "missing.yaml"), filepath.Join(dir, "edge.db")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with a missing seed file")
	}
}

// TestRun_StartsAndStops runs the whole agent against an empty store until
// the context expires and checks the session log was written.
func TestRun_StartsAndStops(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			conn.Close()
		}
	}()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "edge.db")
	seedPath := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(seedPath, []byte("device:\n  config:\n    broker-host: \"localhost\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	writeConfig(t, fmt.Sprintf(`
device:
  id: edge-test
network:
  probe_address: %q
  poll_interval: 1
  dial_timeout: 1
store:
  backend: sqlite
  seed_file: %q
  timeout: 1
  database:
    path: %q
orchestrator:
  shutdown_timeout: 1
api:
  enabled: false
logging:
  level: error
`, ln.Addr().String(), seedPath, dbPath))

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}

	db, err := database.Open(database.Config{Path: dbPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	res, err := audit.NewSQLiteRepository(db.DB).List(context.Background(), audit.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total == 0 {
		t.Error("session log is empty after a run")
	}
}

func TestHashToken(t *testing.T) {
	var out strings.Builder
	if err := hashToken(strings.NewReader("s3cret\n"), &out); err != nil {
		t.Fatalf("hashToken() error = %v", err)
	}
	hash := strings.TrimSpace(out.String())
	ok, err := auth.VerifyToken("s3cret", hash)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if !ok {
		t.Errorf("hash %q does not verify the token", hash)
	}

	if err := hashToken(strings.NewReader("\n"), &out); err == nil {
		t.Error("hashToken() with an empty token error = nil")
	}
}
