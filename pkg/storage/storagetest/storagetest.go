// Package storagetest provides database fixtures for tests.
package storagetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for behavioural tests
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

// NewSQLiteStore returns a store backed by a fresh SQLite file in t.TempDir(),
// with the given DDL applied. The pool is limited to one connection so
// concurrent callers interleave statement by statement on a single writer.
func NewSQLiteStore(t *testing.T, ddl ...string) *storage.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tenantguard.db")
	db, err := sql.Open(storage.SQLite.DriverName(), path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := storage.New(db, storage.SQLite)
	if err := store.Exec(context.Background(), ddl...); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return store
}
