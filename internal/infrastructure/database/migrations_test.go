package database

import (
	"context"
	"errors"
	"testing"
)

// testMigrations is a small history deliberately listed out of order.
func testMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_users",
			Script: `
				CREATE TABLE IF NOT EXISTS test_users (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_test_users_name ON test_users(name);
			`,
		},
		{
			Version: 3,
			Name:    "add_tenant",
			Columns: []ColumnAddition{{Table: "test_users", Name: "tenant_id", Definition: "TEXT"}},
			Script:  `CREATE INDEX IF NOT EXISTS idx_test_users_tenant ON test_users(tenant_id);`,
		},
		{
			Version: 2,
			Name:    "add_email",
			Columns: []ColumnAddition{{Table: "test_users", Name: "email", Definition: "TEXT"}},
		},
	}
}

func columnNames(t *testing.T, db *DB, table string) []string {
	t.Helper()

	var names []string
	err := db.WithConn(context.Background(), func(ctx context.Context, q Querier) error {
		rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				return err
			}
			names = append(names, n)
		}
		return rows.Err()
	})
	if err != nil {
		t.Fatalf("reading columns of %s: %v", table, err)
	}
	return names
}

func versionRows(t *testing.T, db *DB) []int {
	t.Helper()

	var versions []int
	err := db.WithConn(context.Background(), func(ctx context.Context, q Querier) error {
		rows, err := q.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY rowid")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v int
			if err := rows.Scan(&v); err != nil {
				return err
			}
			versions = append(versions, v)
		}
		return rows.Err()
	})
	if err != nil {
		t.Fatalf("reading schema_migrations: %v", err)
	}
	return versions
}

// TestMigrate verifies migration application.
func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != 3 {
		t.Errorf("SchemaVersion() = %d, want 3", version)
	}

	// Applied by version, not by list position: email before tenant_id.
	got := columnNames(t, db, "test_users")
	want := []string{"id", "name", "email", "tenant_id"}
	if len(got) != len(want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, got[i], want[i])
		}
	}

	if rows := versionRows(t, db); len(rows) != 3 || rows[0] != 1 || rows[1] != 2 || rows[2] != 3 {
		t.Errorf("version rows = %v, want [1 2 3]", rows)
	}
}

// TestMigrateIdempotent simulates two startups.
func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx, testMigrations()); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}

	if rows := versionRows(t, db); len(rows) != 3 {
		t.Errorf("version rows = %v, want exactly 3", rows)
	}
}

// TestMigrateIncremental verifies only newer migrations run on an existing
// database.
func TestMigrateIncremental(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	all := testMigrations()

	if err := db.Migrate(ctx, all[:1]); err != nil {
		t.Fatalf("Migrate(v1) error = %v", err)
	}
	if v, _ := db.SchemaVersion(ctx); v != 1 { //nolint:errcheck // Checked via value
		t.Fatalf("SchemaVersion() = %d, want 1", v)
	}

	if err := db.Migrate(ctx, all); err != nil {
		t.Fatalf("Migrate(all) error = %v", err)
	}
	if rows := versionRows(t, db); len(rows) != 3 {
		t.Errorf("version rows = %v, want 3", rows)
	}
}

// TestMigrateRerunBody simulates a crash after a body ran but before its
// version row was committed: the guarded body must run again cleanly.
func TestMigrateRerunBody(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	err := db.WithConn(ctx, func(ctx context.Context, q Querier) error {
		_, err := q.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version >= 2")
		return err
	})
	if err != nil {
		t.Fatalf("deleting version rows: %v", err)
	}

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("re-running Migrate() error = %v", err)
	}
	if v, _ := db.SchemaVersion(ctx); v != 3 { //nolint:errcheck // Checked via value
		t.Errorf("SchemaVersion() = %d, want 3", v)
	}
}

// TestMigrateFailure verifies a failing migration stops the run and leaves
// no version row.
func TestMigrateFailure(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	migrations := append(testMigrations(),
		Migration{Version: 4, Name: "broken", Script: "CREATE TABLE broken (id TEXT PRIMARY KEY); THIS IS NOT SQL;"},
		Migration{Version: 5, Name: "never_reached", Script: "CREATE TABLE never_reached (id TEXT);"},
	)

	err := db.Migrate(ctx, migrations)
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("Migrate() error = %v, want ErrMigrationFailed", err)
	}

	var merr *MigrationError
	if !errors.As(err, &merr) {
		t.Fatalf("Migrate() error %T is not *MigrationError", err)
	}
	if merr.Version != 4 {
		t.Errorf("MigrationError.Version = %d, want 4", merr.Version)
	}

	if v, _ := db.SchemaVersion(ctx); v != 3 { //nolint:errcheck // Checked via value
		t.Errorf("SchemaVersion() = %d, want 3", v)
	}

	var tables int
	err = db.WithConn(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('broken', 'never_reached')",
		).Scan(&tables)
	})
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if tables != 0 {
		t.Errorf("found %d tables from failed or skipped migrations, want 0", tables)
	}
}

// TestMigrateColumnOnMissingTable verifies a column guard does not paper
// over a missing table.
func TestMigrateColumnOnMissingTable(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	err := db.Migrate(context.Background(), []Migration{{
		Version: 1,
		Name:    "orphan_column",
		Columns: []ColumnAddition{{Table: "nowhere", Name: "x", Definition: "TEXT"}},
	}})
	if !errors.Is(err, ErrMigrationFailed) {
		t.Errorf("Migrate() error = %v, want ErrMigrationFailed", err)
	}
}

// TestMigrateNewerDatabase verifies a database ahead of the known list is
// left alone.
func TestMigrateNewerDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.Migrate(ctx, testMigrations()[:1]); err != nil {
		t.Fatalf("Migrate() with older list error = %v", err)
	}
	if v, _ := db.SchemaVersion(ctx); v != 3 { //nolint:errcheck // Checked via value
		t.Errorf("SchemaVersion() = %d, want 3", v)
	}
}

// TestMigrateInvalidList verifies list validation.
func TestMigrateInvalidList(t *testing.T) {
	tests := []struct {
		name       string
		migrations []Migration
	}{
		{"zero version", []Migration{{Version: 0, Name: "zero"}}},
		{"negative version", []Migration{{Version: -1, Name: "negative"}}},
		{"duplicate version", []Migration{{Version: 1, Name: "a"}, {Version: 1, Name: "b"}}},
		{"bad table name", []Migration{{Version: 1, Columns: []ColumnAddition{{Table: "x; DROP", Name: "y", Definition: "TEXT"}}}}},
		{"bad column name", []Migration{{Version: 1, Columns: []ColumnAddition{{Table: "x", Name: "y z", Definition: "TEXT"}}}}},
	}

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.Migrate(context.Background(), tt.migrations)
			if !errors.Is(err, ErrInvalidMigration) {
				t.Errorf("Migrate() error = %v, want ErrInvalidMigration", err)
			}
		})
	}
}

// TestMigrateNoMigrations verifies behaviour with an empty list.
func TestMigrateNoMigrations(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	if err := db.Migrate(ctx, nil); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
	if v, err := db.SchemaVersion(ctx); err != nil || v != 0 {
		t.Errorf("SchemaVersion() = %d, %v; want 0, nil", v, err)
	}
}

// TestMigrationStatus verifies status reporting.
func TestMigrationStatus(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	all := testMigrations()

	if err := db.Migrate(ctx, all[:1]); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	statuses, err := db.MigrationStatus(ctx, all)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("len(statuses) = %d, want 3", len(statuses))
	}

	wantApplied := []bool{true, false, false}
	for i, s := range statuses {
		if s.Version != i+1 {
			t.Errorf("statuses[%d].Version = %d, want %d", i, s.Version, i+1)
		}
		if s.Applied != wantApplied[i] {
			t.Errorf("statuses[%d].Applied = %v, want %v", i, s.Applied, wantApplied[i])
		}
	}
	if statuses[0].AppliedAt.IsZero() {
		t.Error("applied migration has zero AppliedAt")
	}
}

// TestAppliedVersionsWithGap covers a file that was migrated to 3 before
// version 2 existed: Migrate never fills the gap and AppliedVersions shows it.
func TestAppliedVersionsWithGap(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	all := testMigrations()

	// v1 and v3 only, as shipped before add_email was written.
	if err := db.Migrate(ctx, all[:2]); err != nil {
		t.Fatalf("Migrate(v1, v3) error = %v", err)
	}
	if err := db.Migrate(ctx, all); err != nil {
		t.Fatalf("Migrate(all) error = %v", err)
	}

	versions, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if len(versions) != 2 || versions[0] != 1 || versions[1] != 3 {
		t.Errorf("AppliedVersions() = %v, want [1 3]", versions)
	}
	if v, _ := db.SchemaVersion(ctx); v != 3 { //nolint:errcheck // Checked via value
		t.Errorf("SchemaVersion() = %d, want 3", v)
	}

	exists, err := db.ColumnExists(ctx, "test_users", "email")
	if err != nil {
		t.Fatalf("ColumnExists() error = %v", err)
	}
	if exists {
		t.Error("email column exists, want migration 2 skipped")
	}
}

func TestAppliedVersionsUnmigrated(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	versions, err := db.AppliedVersions(context.Background())
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("AppliedVersions() = %v, want none", versions)
	}
}

func TestLatestVersion(t *testing.T) {
	if got := LatestVersion(testMigrations()); got != 3 {
		t.Errorf("LatestVersion() = %d, want 3", got)
	}
	if got := LatestVersion(nil); got != 0 {
		t.Errorf("LatestVersion(nil) = %d, want 0", got)
	}
}

func TestColumnExists(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	ok, err := db.ColumnExists(ctx, "test_users", "email")
	if err != nil || !ok {
		t.Errorf("ColumnExists(email) = %v, %v; want true, nil", ok, err)
	}
	ok, err = db.ColumnExists(ctx, "test_users", "phone")
	if err != nil || ok {
		t.Errorf("ColumnExists(phone) = %v, %v; want false, nil", ok, err)
	}
}
