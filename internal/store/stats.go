package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/dealer-core/internal/infrastructure/database"
)

// DealStats summarises tenant's deals in one grouped query. With no deals
// every figure is zero.
func (s *Store) DealStats(ctx context.Context, tenant string) (_ DealStats, err error) {
	defer s.metrics.observe(EntityDeal, "stats", time.Now(), &err)

	if _, err := s.dealLayout(tenant); err != nil {
		return DealStats{}, err
	}

	stats := DealStats{CountByStatus: map[string]int64{}}
	err = s.db.WithConn(ctx, func(ctx context.Context, q database.Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT status, COUNT(*), COALESCE(SUM(total_amount), 0)
			FROM deals
			WHERE user_id = ?
			GROUP BY status`, tenant)
		if err != nil {
			return fmt.Errorf("querying deal stats: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				status string
				count  int64
				amount float64
			)
			if err := rows.Scan(&status, &count, &amount); err != nil {
				return fmt.Errorf("%w: deal stats: %w", ErrDecode, err)
			}
			stats.CountByStatus[status] = count
			stats.TotalCount += count
			stats.TotalAmount += amount
		}
		return rows.Err()
	})
	if err != nil {
		return DealStats{}, err
	}

	if stats.TotalCount > 0 {
		stats.AverageAmount = stats.TotalAmount / float64(stats.TotalCount)
	}
	return stats, nil
}

// TableCounts returns the row count of every store table present at the
// database's schema version, keyed by table name.
func (s *Store) TableCounts(ctx context.Context) (_ map[string]int64, err error) {
	defer s.metrics.observe("store", "count", time.Now(), &err)

	tables := []string{
		s.schema.clients.table,
		s.schema.vehicles.table,
		s.schema.deals.table,
		s.schema.documents.table,
		s.schema.settings.table,
	}
	if s.schema.hasLog {
		tables = append(tables, s.schema.syncLog.table)
	}

	counts := make(map[string]int64, len(tables))
	err = s.db.WithConn(ctx, func(ctx context.Context, q database.Querier) error {
		for _, t := range tables {
			var n sql.NullInt64
			if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&n); err != nil {
				return fmt.Errorf("counting %s: %w", t, err)
			}
			counts[t] = n.Int64
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}
