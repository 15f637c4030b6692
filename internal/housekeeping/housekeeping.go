package housekeeping

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/nerrad567/dealer-core/internal/infrastructure/logging"
)

// CleanupResult reports what a cache cleanup did.
type CleanupResult struct {
	Removed int   `json:"removed"`
	Freed   int64 `json:"freed_bytes"`
	Failed  int   `json:"failed"`
}

// CleanupCache removes regular files under dir last modified more than
// maxAge before now. Directories are left in place.
//
// A file that cannot be inspected or removed is logged and counted in
// Failed; the walk carries on. A missing dir is not an error. A maxAge of
// zero or less disables cleanup.
func CleanupCache(dir string, maxAge time.Duration, now time.Time, logger *logging.Logger) (CleanupResult, error) {
	var res CleanupResult
	if maxAge <= 0 || dir == "" {
		return res, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	cutoff := now.Add(-maxAge)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			logger.Warn("cache entry unreadable", "path", path, "error", err)
			res.Failed++
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logger.Warn("cache entry unreadable", "path", path, "error", err)
			res.Failed++
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			logger.Warn("removing cache file", "path", path, "error", err)
			res.Failed++
			return nil
		}
		res.Removed++
		res.Freed += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("walking cache %s: %w", dir, err)
	}

	if res.Removed > 0 || res.Failed > 0 {
		logger.Info("cache cleaned", "dir", dir, "removed", res.Removed, "freed_bytes", res.Freed, "failed", res.Failed)
	}
	return res, nil
}

// DirSize returns the total size and number of regular files under dir.
// A missing dir has size zero.
func DirSize(dir string) (bytes, files int64, err error) {
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		bytes += info.Size()
		files++
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("sizing %s: %w", dir, err)
	}
	return bytes, files, nil
}

// FileSize returns the size of one file, or zero if it does not exist.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// DatabaseSize returns the on-disk size of a SQLite database: the main file
// plus its -wal and -shm companions. files counts the non-empty ones.
// Missing files count as zero.
func DatabaseSize(path string) (bytes, files int64, err error) {
	var errs []error
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		size, err := FileSize(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if size > 0 {
			bytes += size
			files++
		}
	}
	return bytes, files, errors.Join(errs...)
}
