package store

import (
	"fmt"
	"path/filepath"

	"redtrack/internal/config"
	"redtrack/internal/tracker"
)

// NewStoreFromConfig creates a Store implementation based on the database
// config type.
func NewStoreFromConfig(cfg config.DatabaseConfig) (tracker.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "redtrack.db"))
	case "memory":
		return NewSQLiteStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// Open opens an existing history store at an explicit file path, verifying
// its schema. Used by the merge command, which operates on arbitrary store
// files rather than the configured one.
func Open(path string) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	if err := s.CheckMigrations(); err != nil {
		s.Close()
		return nil, fmt.Errorf("store at %s: %w", path, err)
	}
	return s, nil
}

// Create initializes a fresh history store at path, running all migrations.
func Create(path string) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	if err := s.MigrateUp(); err != nil {
		s.Close()
		return nil, fmt.Errorf("initializing store at %s: %w", path, err)
	}
	return s, nil
}
