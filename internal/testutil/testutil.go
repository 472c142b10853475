// Package testutil provides shared test helpers for setting up libraries and
// history databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/fehu/internal/history"
	"github.com/starford/fehu/internal/library"
)

// TestHistoryDB creates a temporary SQLite history database that is
// automatically cleaned up.
func TestHistoryDB(t *testing.T) *history.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "fehu-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := history.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLibrary creates a temporary library directory seeded with one .var file
// per identifier and returns the directory plus a rebuilt Store.
func TestLibrary(t *testing.T, identifiers ...string) (string, *library.Store) {
	t.Helper()
	dir := t.TempDir()
	for _, id := range identifiers {
		path := filepath.Join(dir, id+".var")
		if err := os.WriteFile(path, []byte("package "+id), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	scanner, err := library.NewFSScanner(dir)
	if err != nil {
		t.Fatal(err)
	}
	store := library.NewStore(scanner)
	if _, err := store.Rebuild(); err != nil {
		t.Fatal(err)
	}
	return dir, store
}
