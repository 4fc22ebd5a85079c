package helpers

import (
	"testing"

	store "github.com/jiuai233/StreamDeck/internal/repository"
)

// NewTestSQLiteStore opens an in-memory history store closed at test end.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
