package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/dealer-core/internal/infrastructure/database"
)

type settingRow struct {
	key, value string
	updatedAt  int64
}

func (r *settingRow) targets() map[string]any {
	return map[string]any{
		"key":        &r.key,
		"value":      &r.value,
		"updated_at": &r.updatedAt,
	}
}

func (r *settingRow) decode() (Setting, error) {
	return Setting{Key: r.key, Value: r.value, UpdatedAt: fromMillis(r.updatedAt)}, nil
}

// GetSetting returns the value stored under key. found is false when the
// key has never been set.
func (s *Store) GetSetting(ctx context.Context, key string) (value string, found bool, err error) {
	defer s.metrics.observe(EntitySetting, "get", time.Now(), &err)

	err = s.db.WithConn(ctx, func(ctx context.Context, q database.Querier) error {
		err := q.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil
		case err != nil:
			return fmt.Errorf("reading setting %q: %w", key, err)
		}
		found = true
		return nil
	})
	return value, found, err
}

// SetSetting stores value under key, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) (err error) {
	defer s.metrics.observe(EntitySetting, OpUpdate, time.Now(), &err)

	if key == "" {
		return fmt.Errorf("%w: setting key is required", ErrInvalidInput)
	}

	return s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, toMillis(s.timestamp()),
		)
		if err != nil {
			return fmt.Errorf("writing setting %q: %w", key, err)
		}
		return s.recordChange(ctx, tx, EntitySetting, key, OpUpdate, "")
	})
}

// ListSettings returns every setting ordered by key.
func (s *Store) ListSettings(ctx context.Context) (_ []Setting, err error) {
	defer s.metrics.observe(EntitySetting, "list", time.Now(), &err)

	query := "SELECT " + s.schema.settings.selectList() + " FROM settings ORDER BY key"

	var out []Setting
	err = s.db.WithConn(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		out, err = queryEntities[Setting, settingRow](ctx, q, settingLayouts.required(), query)
		return err
	})
	return out, err
}

// DeleteSetting removes key. Deleting an unset key yields
// ErrNotFoundOrForbidden.
func (s *Store) DeleteSetting(ctx context.Context, key string) (err error) {
	defer s.metrics.observe(EntitySetting, OpDelete, time.Now(), &err)

	return s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
		if err != nil {
			return fmt.Errorf("deleting setting %q: %w", key, err)
		}
		n, _ := res.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
		if n == 0 {
			return ErrNotFoundOrForbidden
		}
		return s.recordChange(ctx, tx, EntitySetting, key, OpDelete, "")
	})
}
