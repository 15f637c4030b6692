package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/dealer-core/internal/infrastructure/database"
)

// ClearAll deletes every client, vehicle, deal, document and change log
// entry in one transaction. Settings are kept.
//
// It is a development tool and fails with ErrClearAllDisabled unless the
// store was built with AllowClearAll.
func (s *Store) ClearAll(ctx context.Context) (err error) {
	defer s.metrics.observe("store", "clear", time.Now(), &err)

	if !s.allowClearAll {
		return ErrClearAllDisabled
	}

	// Children first so no foreign key is ever violated.
	tables := []string{"documents", "deals", "vehicles", "clients"}
	if s.schema.hasLog {
		tables = append(tables, "sync_log")
	}

	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Querier) error {
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("clearing %s: %w", t, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Warn("store cleared", "tables", tables)
	return nil
}
