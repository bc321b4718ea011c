package testutil

import (
	"testing"

	"github.com/nhle/health-notify/internal/store"
)

// NewTestStore opens an empty in-memory notification cache with the
// ledger and snapshot tables migrated. It is closed when t ends.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening notification cache: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing notification cache: %v", err)
		}
	})

	return s
}
