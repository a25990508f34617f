package testutil

import (
	"testing"

	"redtrack/internal/store"
	"redtrack/internal/store/migrations"
)

// NewTestStore creates an in-memory SQLite history store with all migrations
// applied. The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	db, err := store.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	s := store.NewSQLiteStoreFromDB(db)

	t.Cleanup(func() {
		s.Close()
	})

	return s
}
