package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// identifierPattern restricts table and column names in ColumnAddition,
// which are interpolated into ALTER TABLE statements.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Migration is one forward-only schema change.
//
// Bodies must be safe to run more than once: if the process dies after a
// body has run but before its version row is committed, the next startup
// runs it again. Use CREATE ... IF NOT EXISTS in scripts and declare added
// columns as Columns rather than writing ALTER TABLE by hand.
type Migration struct {
	// Version orders migrations. Must be > 0 and unique within a list.
	Version int

	// Name is the human-readable migration name.
	Name string

	// Columns are added before Script runs, each only if the table does
	// not already have it.
	Columns []ColumnAddition

	// Script is a batch of SQL statements executed as one unit.
	Script string
}

// ColumnAddition describes an ALTER TABLE ... ADD COLUMN guarded by an
// existence check.
type ColumnAddition struct {
	Table string
	Name  string

	// Definition is everything after the column name, e.g. "TEXT" or
	// "INTEGER NOT NULL DEFAULT 0".
	Definition string
}

// MigrationStatus reports whether a known migration has been applied.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Migrate brings the schema up to the newest version in migrations.
//
// The current version is the highest version recorded in schema_migrations
// (0 for a new file). Every migration with a higher version is applied in
// ascending version order, whatever order the slice lists them in. Each
// migration runs in its own transaction together with the insert of its
// version row, so a migration is either fully recorded or not at all.
//
// If a migration fails, Migrate stops and returns a *MigrationError; earlier
// migrations stay committed and the failed one leaves no trace. The caller
// must not continue with the schema in that state.
//
// Migrate never moves the version backwards. A database already at a
// version newer than every known migration is left untouched.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - migrations: The fixed list of known migrations
//
// Returns:
//   - error: ErrInvalidMigration for a malformed list, *MigrationError if a
//     migration fails, or a wrapped storage error
func (db *DB) Migrate(ctx context.Context, migrations []Migration) error {
	ordered, err := sortMigrations(migrations)
	if err != nil {
		return err
	}

	return db.WithConn(ctx, func(ctx context.Context, _ Querier) error {
		if err := createMigrationsTable(ctx, db.sql); err != nil {
			return fmt.Errorf("creating migrations table: %w", err)
		}

		current, err := currentVersion(ctx, db.sql)
		if err != nil {
			return err
		}

		for _, m := range ordered {
			if m.Version <= current {
				continue
			}
			if err := applyMigration(ctx, db.sql, m); err != nil {
				return &MigrationError{Version: m.Version, Name: m.Name, Err: err}
			}
		}
		return nil
	})
}

// SchemaVersion returns the highest applied migration version, or 0 if no
// migration has been applied.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := db.WithConn(ctx, func(ctx context.Context, _ Querier) error {
		if err := createMigrationsTable(ctx, db.sql); err != nil {
			return fmt.Errorf("creating migrations table: %w", err)
		}
		v, err := currentVersion(ctx, db.sql)
		version = v
		return err
	})
	return version, err
}

// AppliedVersions returns every recorded migration version in ascending
// order. It can have gaps below SchemaVersion: a migration authored with a
// lower version after a higher one has shipped is never applied to files
// already past it.
func (db *DB) AppliedVersions(ctx context.Context) ([]int, error) {
	var applied map[int]time.Time
	err := db.WithConn(ctx, func(ctx context.Context, _ Querier) error {
		if err := createMigrationsTable(ctx, db.sql); err != nil {
			return fmt.Errorf("creating migrations table: %w", err)
		}
		var err error
		applied, err = appliedMigrations(ctx, db.sql)
		return err
	})
	if err != nil {
		return nil, err
	}

	versions := make([]int, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions, nil
}

// MigrationStatus lists every known migration in version order with its
// applied state. Useful for the status command and debugging.
func (db *DB) MigrationStatus(ctx context.Context, migrations []Migration) ([]MigrationStatus, error) {
	ordered, err := sortMigrations(migrations)
	if err != nil {
		return nil, err
	}

	var applied map[int]time.Time
	err = db.WithConn(ctx, func(ctx context.Context, _ Querier) error {
		if err := createMigrationsTable(ctx, db.sql); err != nil {
			return fmt.Errorf("creating migrations table: %w", err)
		}
		var err error
		applied, err = appliedMigrations(ctx, db.sql)
		return err
	})
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(ordered))
	for _, m := range ordered {
		at, ok := applied[m.Version]
		statuses = append(statuses, MigrationStatus{
			Version:   m.Version,
			Name:      m.Name,
			Applied:   ok,
			AppliedAt: at,
		})
	}
	return statuses, nil
}

// LatestVersion returns the highest version in migrations, or 0 for an
// empty list.
func LatestVersion(migrations []Migration) int {
	latest := 0
	for _, m := range migrations {
		latest = max(latest, m.Version)
	}
	return latest
}

// sortMigrations validates the list and returns a copy ordered by version.
func sortMigrations(migrations []Migration) ([]Migration, error) {
	seen := make(map[int]bool, len(migrations))
	for _, m := range migrations {
		if m.Version <= 0 {
			return nil, fmt.Errorf("%w: version %d of %q is not positive", ErrInvalidMigration, m.Version, m.Name)
		}
		if seen[m.Version] {
			return nil, fmt.Errorf("%w: duplicate version %d", ErrInvalidMigration, m.Version)
		}
		seen[m.Version] = true

		for _, c := range m.Columns {
			if !identifierPattern.MatchString(c.Table) || !identifierPattern.MatchString(c.Name) {
				return nil, fmt.Errorf("%w: version %d: bad column %q.%q", ErrInvalidMigration, m.Version, c.Table, c.Name)
			}
		}
	}

	ordered := slices.Clone(migrations)
	slices.SortFunc(ordered, func(a, b Migration) int {
		return a.Version - b.Version
	})
	return ordered, nil
}

// createMigrationsTable creates the schema_migrations table if it doesn't exist.
func createMigrationsTable(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

// currentVersion reads MAX(version); NULL (no rows) means 0.
func currentVersion(ctx context.Context, q Querier) (int, error) {
	var version sql.NullInt64
	if err := q.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return int(version.Int64), nil
}

// appliedMigrations returns applied versions mapped to their applied_at time.
func appliedMigrations(ctx context.Context, q Querier) (map[int]time.Time, error) {
	rows, err := q.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt string
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		// Written by applyMigration, so the format is ours.
		at, _ := time.Parse(time.RFC3339, appliedAt) //nolint:errcheck // Format is controlled
		applied[version] = at
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return applied, nil
}

// applyMigration runs one migration body and records its version in a
// single transaction.
func applyMigration(ctx context.Context, sqlDB *sql.DB, m Migration) error {
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	for _, c := range m.Columns {
		if err := addColumnIfMissing(ctx, tx, c); err != nil {
			return err
		}
	}

	if strings.TrimSpace(m.Script) != "" {
		if _, err := tx.ExecContext(ctx, m.Script); err != nil {
			return fmt.Errorf("executing SQL: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version,
		time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}

// addColumnIfMissing adds c unless the table already has a column of that
// name. A missing table is an error: column additions never create tables.
func addColumnIfMissing(ctx context.Context, q Querier, c ColumnAddition) error {
	exists, err := columnExists(ctx, q, c.Table, c.Name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.Table, c.Name, c.Definition)
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("adding column %s.%s: %w", c.Table, c.Name, err)
	}
	return nil
}

// ColumnExists reports whether table has a column called column.
func (db *DB) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	var exists bool
	err := db.WithConn(ctx, func(ctx context.Context, q Querier) error {
		var err error
		exists, err = columnExists(ctx, q, table, column)
		return err
	})
	return exists, err
}

func columnExists(ctx context.Context, q Querier, table, column string) (bool, error) {
	var tables int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&tables); err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	if tables == 0 {
		return false, fmt.Errorf("checking column %s.%s: %w", table, column, errNoSuchTable)
	}

	var count int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}
