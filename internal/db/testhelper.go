package db

import (
	"path/filepath"
	"testing"
)

// OpenTestPair opens a migrated history store in t.TempDir() and
// registers cleanup. Tests that don't care about the write/read split
// can use the write pool for everything.
func OpenTestPair(t *testing.T) *Pair {
	t.Helper()

	pair, err := Open(filepath.Join(t.TempDir(), "history.sqlite"), 4)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = pair.Close() })

	if err := Migrate(pair.Write); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}

	return pair
}
