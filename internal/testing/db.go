// Package testing provides testing utilities and helpers for the volcorr project.
package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aristath/volcorr/internal/database"
)

// NewTestDB creates a file-backed SQLite database in a temporary directory
// with automatic schema migration. Unknown names create an empty database.
// The database is closed when the test ends.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), name+".db"),
		Name: name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})
	return db
}

// NewMemoryDB opens an in-memory database through the cgo sqlite3 driver and
// applies the named schema. A single connection keeps the memory database
// alive for the whole test.
func NewMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	conn.SetMaxOpenConns(1)

	if err := database.Migrate(conn, name); err != nil {
		_ = conn.Close()
		t.Fatalf("Failed to migrate in-memory database %s: %v", name, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
