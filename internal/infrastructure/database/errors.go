package database

import "errors"

var (
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database: no path configured")

	// ErrMigrationNotFound means an applied version has no file to roll back.
	ErrMigrationNotFound = errors.New("database: migration not found")

	// ErrNoDownMigration means the latest migration cannot be rolled back.
	ErrNoDownMigration = errors.New("database: migration has no down SQL")
)
