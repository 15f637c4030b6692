package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// Domain-specific errors for store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMissingTenant is returned when a tenant-scoped operation is called
	// without a tenant id. This is a caller bug, never "all tenants".
	ErrMissingTenant = errors.New("store: tenant id required")

	// ErrDuplicateKey is returned when a natural key (VIN) or id collides.
	ErrDuplicateKey = errors.New("store: duplicate key")

	// ErrNotFoundOrForbidden is returned by update and delete when the row
	// does not exist or belongs to another tenant. The two cases are not
	// distinguished.
	ErrNotFoundOrForbidden = errors.New("store: not found")

	// ErrDecode is returned when a row cannot be mapped to its entity.
	// It always indicates a defect.
	ErrDecode = errors.New("store: cannot decode row")

	// ErrSerialization is returned when a list or object field cannot be
	// encoded to or decoded from its stored JSON text.
	ErrSerialization = errors.New("store: serialization failed")

	// ErrInUse is returned when deleting a row other rows still reference
	// (a client or vehicle with deals).
	ErrInUse = errors.New("store: referenced by other records")

	// ErrInvalidReference is returned when a write points at a row that
	// does not exist (a deal for an unknown client or vehicle).
	ErrInvalidReference = errors.New("store: referenced record does not exist")

	// ErrInvalidInput is returned for entities missing required fields.
	ErrInvalidInput = errors.New("store: invalid input")

	// ErrSchemaOutdated is returned when the database has not been migrated
	// far enough for the requested operation.
	ErrSchemaOutdated = errors.New("store: schema version too old for operation")

	// ErrClearAllDisabled is returned by ClearAll unless the store was
	// built with AllowClearAll.
	ErrClearAllDisabled = errors.New("store: clear all is disabled")
)

// mapWriteError converts SQLite constraint failures to store errors.
// onForeignKey is the error a foreign key violation means for this write:
// ErrInUse for deletes, ErrInvalidReference for inserts and updates.
func mapWriteError(err error, onForeignKey error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %w", ErrDuplicateKey, err)
		case isForeignKeyViolation(sqliteErr):
			return fmt.Errorf("%w: %w", onForeignKey, err)
		}
	}
	return err
}

// isForeignKeyViolation matches both ways SQLite reports a foreign key
// failure. Immediate checks on insert and update use
// SQLITE_CONSTRAINT_FOREIGNKEY; ON DELETE RESTRICT is enforced by an
// internal trigger and reports SQLITE_CONSTRAINT_TRIGGER with the same
// message.
func isForeignKeyViolation(err sqlite3.Error) bool {
	switch err.ExtendedCode {
	case sqlite3.ErrConstraintForeignKey:
		return true
	case sqlite3.ErrConstraintTrigger:
		return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
	}
	return false
}
