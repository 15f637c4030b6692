// Package database provides SQLite connectivity for the dealer store.
//
// This package manages:
//   - The single physical connection, opened once and handed to one caller
//     at a time through WithConn and WithTx
//   - Durability settings: WAL journal, foreign keys, busy timeout
//   - The forward-only migration engine and its schema_migrations table
//   - A casefold() SQL function used for case-insensitive search
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Identifiers in column additions are validated before interpolation
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	mgr := database.NewManager(database.StaticPath(cfg.Database.Path), database.Config{
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	db, err := mgr.Open()
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	if err := db.Migrate(ctx, migrations.All()); err != nil {
//	    return err // fatal: never run on a partially migrated schema
//	}
//
// Migration Strategy:
//
// Migrations are additive and one-directional:
//   - Versions are positive integers; the highest applied version is the
//     schema version
//   - Migrations newer than the schema version run in ascending version
//     order, each in its own transaction with its version row
//   - Bodies must be re-runnable: CREATE ... IF NOT EXISTS, and columns
//     declared as ColumnAddition so they are only added when absent
//   - There is no down migration
package database
