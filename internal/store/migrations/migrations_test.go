package migrations_test

import (
	"testing"

	"redtrack/internal/store"
	"redtrack/internal/store/migrations"
)

func TestMigrations(t *testing.T) {
	t.Run("check fails on an empty database", func(t *testing.T) {
		db, err := store.OpenConnection(":memory:")
		if err != nil {
			t.Fatalf("OpenConnection() error = %v", err)
		}
		defer db.Close()

		if err := migrations.Check(db); err == nil {
			t.Error("Check() on empty database expected an error")
		}
	})

	t.Run("up then check succeeds", func(t *testing.T) {
		db, err := store.OpenConnection(":memory:")
		if err != nil {
			t.Fatalf("OpenConnection() error = %v", err)
		}
		defer db.Close()

		if err := migrations.Up(db); err != nil {
			t.Fatalf("Up() error = %v", err)
		}
		if err := migrations.Check(db); err != nil {
			t.Errorf("Check() after Up() error = %v", err)
		}
	})

	t.Run("up is idempotent", func(t *testing.T) {
		db, err := store.OpenConnection(":memory:")
		if err != nil {
			t.Fatalf("OpenConnection() error = %v", err)
		}
		defer db.Close()

		if err := migrations.Up(db); err != nil {
			t.Fatalf("first Up() error = %v", err)
		}
		if err := migrations.Up(db); err != nil {
			t.Fatalf("second Up() error = %v", err)
		}
	})

	t.Run("schema has the expected tables", func(t *testing.T) {
		db, err := store.OpenConnection(":memory:")
		if err != nil {
			t.Fatalf("OpenConnection() error = %v", err)
		}
		defer db.Close()

		if err := migrations.Up(db); err != nil {
			t.Fatalf("Up() error = %v", err)
		}

		for _, table := range []string{"account_snapshots", "items", "score_history", "poll_runs"} {
			var name string
			err := db.QueryRow(
				`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
			if err != nil {
				t.Errorf("table %s missing: %v", table, err)
			}
		}
	})
}
