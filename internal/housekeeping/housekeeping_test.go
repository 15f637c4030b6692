package housekeeping

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/dealer-core/internal/infrastructure/logging"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, path string, size int, modTime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func TestCleanupCache(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "thumbs", "old.jpg")
	fresh := filepath.Join(dir, "fresh.jpg")
	writeFile(t, old, 100, now.Add(-40*24*time.Hour))
	writeFile(t, filepath.Join(dir, "older.bin"), 50, now.Add(-31*24*time.Hour))
	writeFile(t, fresh, 10, now.Add(-time.Hour))

	res, err := CleanupCache(dir, 30*24*time.Hour, now, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{Removed: 2, Freed: 150}, res)

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.DirExists(t, filepath.Join(dir, "thumbs"))
}

func TestCleanupCacheNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.jpg")
	writeFile(t, path, 1, now.Add(-365*24*time.Hour))

	tests := []struct {
		name   string
		dir    string
		maxAge time.Duration
	}{
		{"disabled", dir, 0},
		{"missing dir", filepath.Join(dir, "nope"), time.Hour},
		{"empty dir", "", time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := CleanupCache(tt.dir, tt.maxAge, now, logging.Discard())
			require.NoError(t, err)
			assert.Zero(t, res)
		})
	}
	assert.FileExists(t, path)
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a"), 10, now)
	writeFile(t, filepath.Join(dir, "sub", "b"), 32, now)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))

	bytes, files, err := DirSize(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(42), bytes)
	assert.Equal(t, int64(2), files)

	bytes, files, err = DirSize(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, bytes)
	assert.Zero(t, files)
}

func TestFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dealer.db")
	writeFile(t, path, 4096, now)

	size, err := FileSize(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)

	size, err = FileSize(filepath.Join(dir, "missing.db"))
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestDatabaseSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dealer.db")
	writeFile(t, path, 4096, now)
	writeFile(t, path+"-wal", 1024, now)
	writeFile(t, path+"-shm", 0, now)

	bytes, files, err := DatabaseSize(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5120), bytes)
	assert.Equal(t, int64(2), files, "empty -shm is not counted")

	bytes, files, err = DatabaseSize(filepath.Join(dir, "missing.db"))
	require.NoError(t, err)
	assert.Zero(t, bytes)
	assert.Zero(t, files)
}
