package testutil

import (
	"path/filepath"
	"testing"

	"github.com/mediavault/mediavault/internal/store"
)

// NewTestStore creates a temporary catalog database with the schema
// applied. It is closed when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})

	if err := st.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return st
}
