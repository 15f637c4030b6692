package database

import (
	"fmt"
	"sync"
)

// PathResolver locates the database file. Where the file lives depends on
// the platform and install type, which is not this package's concern.
type PathResolver interface {
	DatabasePath() (string, error)
}

// StaticPath is a PathResolver that always returns the same path.
type StaticPath string

// DatabasePath returns the path unchanged.
func (p StaticPath) DatabasePath() (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: no database path configured", ErrStorageUnavailable)
	}
	return string(p), nil
}

// Manager owns the lifecycle of the process's single *DB.
//
// Open is idempotent: the first successful call opens the file and every
// later call returns the same handle. A failed open is not cached, so a
// caller can fix the cause (e.g. free disk space) and try again.
type Manager struct {
	resolver PathResolver
	cfg      Config

	mu sync.Mutex
	db *DB
}

// NewManager creates a Manager. cfg.Path is ignored; the resolver decides.
func NewManager(resolver PathResolver, cfg Config) *Manager {
	return &Manager{resolver: resolver, cfg: cfg}
}

// Open returns the open database, opening it on first use.
func (m *Manager) Open() (*DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db, nil
	}

	path, err := m.resolver.DatabasePath()
	if err != nil {
		return nil, fmt.Errorf("%w: resolving database path: %w", ErrStorageUnavailable, err)
	}

	cfg := m.cfg
	cfg.Path = path

	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	m.db = db
	return db, nil
}

// Close closes the database if it was opened. A later Open reopens it.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}
