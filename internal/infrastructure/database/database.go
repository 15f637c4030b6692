package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second
)

// Querier is the subset of *sql.DB and *sql.Tx used by callers of WithConn
// and WithTx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB owns the single physical connection to the store file.
//
// The underlying *sql.DB is never exposed. All access goes through WithConn
// or WithTx, which hand out the connection to one caller at a time.
type DB struct {
	sql  *sql.DB
	path string

	// sem is a one-slot semaphore guarding the connection.
	sem chan struct{}
}

// Config contains database configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging for crash safety and
	// concurrent readers during a write.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int
}

// Open creates the database connection with the specified configuration.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the database file (creates if not present)
//  3. Enables foreign keys, WAL mode and the busy timeout
//  4. Verifies the connection with a ping
//  5. Sets file permissions (0600)
//
// Every failure wraps ErrStorageUnavailable.
//
// Parameters:
//   - cfg: Database configuration
//
// Returns:
//   - *DB: Connected database handle
//   - error: If the file cannot be created or opened
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: empty database path", ErrStorageUnavailable)
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("%w: creating database directory: %w", ErrStorageUnavailable, err)
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open(DriverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", ErrStorageUnavailable, err)
	}

	// One physical connection for the life of the process. Idle and
	// lifetime limits are left unset so it is never silently recycled.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{
		sql:  sqlDB,
		path: cfg.Path,
		sem:  make(chan struct{}, 1),
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: verifying database connection: %w", ErrStorageUnavailable, err)
	}

	// The ping created the file, so permissions can be tightened now.
	if err := os.Chmod(cfg.Path, filePermissions); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: setting file permissions: %w", ErrStorageUnavailable, err)
	}

	return db, nil
}

// Close closes the database connection gracefully.
// It should be called when the application shuts down.
func (db *DB) Close() error {
	if db == nil || db.sql == nil {
		return nil
	}
	if err := db.sql.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// WithConn runs fn with exclusive use of the connection.
//
// Waiting for the connection honours ctx. Once acquired, fn runs to
// completion: the context it receives is detached from ctx's cancellation so
// an operation either finishes or fails on its own terms. The connection is
// released on every exit path, including a panic in fn.
//
// fn must not retain q after it returns and must not wait on anything
// external (network, user input) while holding it.
func (db *DB) WithConn(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	select {
	case db.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("acquiring connection: %w", ctx.Err())
	}
	defer func() { <-db.sem }()

	return fn(context.WithoutCancel(ctx), db.sql)
}

// WithTx runs fn inside a transaction while holding the connection.
//
// The transaction commits if fn returns nil and rolls back otherwise. A panic
// in fn rolls back and is re-raised after the connection is released.
//
// Example:
//
//	err := db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
//	    if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE deal_id = ?", id); err != nil {
//	        return err
//	    }
//	    _, err := tx.ExecContext(ctx, "DELETE FROM deals WHERE id = ?", id)
//	    return err
//	})
func (db *DB) WithTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx Querier) error) error {
	return db.WithConn(ctx, func(ctx context.Context, _ Querier) error {
		return runTx(ctx, db.sql, opts, fn)
	})
}

func runTx(ctx context.Context, sqlDB *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx Querier) error) (err error) {
	tx, err := sqlDB.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback() //nolint:errcheck // Rethrowing the panic below
			panic(p)
		}
		if err != nil {
			tx.Rollback() //nolint:errcheck // Original error takes precedence
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("committing transaction: %w", cerr)
		}
	}()

	return fn(ctx, tx)
}

// HealthCheck verifies the database is accessible and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.WithConn(ctx, func(ctx context.Context, q Querier) error {
		var result int
		if err := q.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
			return fmt.Errorf("database health check failed: %w", err)
		}
		return nil
	})
}

// JournalMode reports the journal mode currently in effect ("wal" when
// WAL mode took hold).
func (db *DB) JournalMode(ctx context.Context) (string, error) {
	var mode string
	err := db.WithConn(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode)
	})
	if err != nil {
		return "", fmt.Errorf("reading journal mode: %w", err)
	}
	return mode, nil
}

// Stats returns connection pool statistics.
func (db *DB) Stats() sql.DBStats {
	return db.sql.Stats()
}
