package database

import (
	"errors"
	"fmt"
)

// Domain-specific errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrStorageUnavailable is returned when the database file cannot be
	// created or opened (permissions, disk full, bad path).
	ErrStorageUnavailable = errors.New("database: storage unavailable")

	// ErrMigrationFailed matches every *MigrationError.
	ErrMigrationFailed = errors.New("database: migration failed")

	// ErrInvalidMigration is returned for a malformed migration list
	// (non-positive or duplicate versions, bad identifiers).
	ErrInvalidMigration = errors.New("database: invalid migration")

	errNoSuchTable = errors.New("no such table")
)

// MigrationError reports which migration failed. Startup must stop when
// Migrate returns one.
type MigrationError struct {
	Version int
	Name    string
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("database: migration %d (%s) failed: %v", e.Version, e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMigrationFailed) true for any MigrationError.
func (e *MigrationError) Is(target error) bool {
	return target == ErrMigrationFailed
}
