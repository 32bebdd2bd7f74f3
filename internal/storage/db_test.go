package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestNew_FileSystemDatabase tests database creation with file system persistence
func TestNew_FileSystemDatabase(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "menubot.db")

	ctx := context.Background()
	db, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file not created: %s", dbPath)
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}

	if err := db.RecordDelivery(ctx, Delivery{Channel: "messenger", Recipient: "u", Trigger: "menu", ResponseID: "menu-intro", Status: StatusDelivered}); err != nil {
		t.Fatalf("RecordDelivery failed: %v", err)
	}
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

// TestNew_NestedDirectory tests database creation with nested directory path
func TestNew_NestedDirectory(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "sub1", "sub2", "menubot.db")

	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create database with nested path: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
		t.Errorf("Nested directory not created: %v", err)
	}
}

// TestNew_Reopen verifies the schema is idempotent across restarts.
func TestNew_Reopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "menubot.db")

	db, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := db.RecordDelivery(ctx, Delivery{Channel: "line", Recipient: "u", Trigger: "t", ResponseID: "r", Status: StatusFailed}); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}
	_ = db.Close()

	db, err = New(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = db.Close() }()

	n, err := db.CountDeliveries(ctx, "")
	if err != nil {
		t.Fatalf("CountDeliveries: %v", err)
	}
	if n != 1 {
		t.Errorf("CountDeliveries() = %d, want 1", n)
	}
}
