package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/dealer-core/internal/infrastructure/database"
)

type changeRow struct {
	id                  int64
	entityType          string
	entityID, operation string
	createdAt           int64
	syncedAt            sql.NullInt64
	tenantID            sql.NullString
}

func (r *changeRow) targets() map[string]any {
	return map[string]any{
		"id":          &r.id,
		"entity_type": &r.entityType,
		"entity_id":   &r.entityID,
		"operation":   &r.operation,
		"created_at":  &r.createdAt,
		"synced_at":   &r.syncedAt,
		"user_id":     &r.tenantID,
	}
}

func (r *changeRow) decode() (Change, error) {
	return Change{
		ID:         r.id,
		EntityType: r.entityType,
		EntityID:   r.entityID,
		Operation:  r.operation,
		TenantID:   r.tenantID.String,
		CreatedAt:  fromMillis(r.createdAt),
		SyncedAt:   timePtr(r.syncedAt),
	}, nil
}

func (s *Store) changeLog() (layout, error) {
	if !s.schema.hasLog {
		return layout{}, fmt.Errorf("%w: no change log", ErrSchemaOutdated)
	}
	return s.schema.syncLog, nil
}

// PendingChanges returns up to limit unsynced changes, oldest first.
// A limit of zero or less returns them all.
func (s *Store) PendingChanges(ctx context.Context, limit int) (_ []Change, err error) {
	defer s.metrics.observe("change", "list", time.Now(), &err)

	l, err := s.changeLog()
	if err != nil {
		return nil, err
	}

	query := "SELECT " + l.selectList() + " FROM sync_log WHERE synced_at IS NULL ORDER BY id"
	var queryArgs []any
	if limit > 0 {
		query += " LIMIT ?"
		queryArgs = append(queryArgs, limit)
	}

	var out []Change
	err = s.db.WithConn(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		out, err = queryEntities[Change, changeRow](ctx, q, syncLogLayouts.required(), query, queryArgs...)
		return err
	})
	return out, err
}

// MarkChangesSynced stamps the given changes as synced at at and returns
// how many were still pending.
func (s *Store) MarkChangesSynced(ctx context.Context, ids []int64, at time.Time) (_ int64, err error) {
	defer s.metrics.observe("change", OpUpdate, time.Now(), &err)

	if _, err := s.changeLog(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	queryArgs := make([]any, 0, len(ids)+1)
	queryArgs = append(queryArgs, toMillis(at))
	for _, id := range ids {
		queryArgs = append(queryArgs, id)
	}
	query := "UPDATE sync_log SET synced_at = ? WHERE synced_at IS NULL AND id IN (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + ")"

	var n int64
	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		res, err := tx.ExecContext(ctx, query, queryArgs...)
		if err != nil {
			return fmt.Errorf("marking changes synced: %w", err)
		}
		n, _ = res.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
		return nil
	})
	return n, err
}
