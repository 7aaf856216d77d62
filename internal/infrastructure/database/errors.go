package database

import "errors"

var (
	// ErrNoPath is returned by Open when no database file is configured.
	ErrNoPath = errors.New("database: path is required")

	// ErrNoDownMigration is returned by MigrateDown when the latest applied
	// migration cannot be reverted.
	ErrNoDownMigration = errors.New("database: migration has no down SQL")
)
