package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/dealer-core/internal/infrastructure/database"
)

// rowDecoder is implemented by the per-table row structs. targets maps
// column names to scan destinations; decode converts the scanned values to
// the entity.
type rowDecoder[E any] interface {
	targets() map[string]any
	decode() (E, error)
}

// scanRow scans the current row by column name.
//
// The row's own column list decides what is read: columns the row lacks
// (added by a migration the row's query predates) keep their zero value,
// and a column the decoder has no target for is a defect. Every column in
// required must be present.
func scanRow(rows *sql.Rows, required []string, targets map[string]any) error {
	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("%w: reading columns: %w", ErrDecode, err)
	}

	present := make(map[string]bool, len(cols))
	dest := make([]any, len(cols))
	for i, c := range cols {
		d, ok := targets[c]
		if !ok {
			return fmt.Errorf("%w: unexpected column %q", ErrDecode, c)
		}
		if present[c] {
			return fmt.Errorf("%w: duplicate column %q", ErrDecode, c)
		}
		present[c] = true
		dest[i] = d
	}
	for _, c := range required {
		if !present[c] {
			return fmt.Errorf("%w: missing column %q", ErrDecode, c)
		}
	}

	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

// queryEntities runs query and decodes every row through R.
func queryEntities[E any, R any, P interface {
	*R
	rowDecoder[E]
}](ctx context.Context, q database.Querier, required []string, query string, args ...any) ([]E, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	var out []E
	for rows.Next() {
		var r R
		p := P(&r)
		if err := scanRow(rows, required, p.targets()); err != nil {
			return nil, err
		}
		e, err := p.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// queryEntity returns the first decoded row, or nil if there is none.
func queryEntity[E any, R any, P interface {
	*R
	rowDecoder[E]
}](ctx context.Context, q database.Querier, required []string, query string, args ...any) (*E, error) {
	all, err := queryEntities[E, R, P](ctx, q, required, query, args...)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return &all[0], nil
}

// Timestamps are stored as unix milliseconds.

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// truncMillis drops precision the database cannot keep, so a value
// returned from a write compares equal to the same value read back.
func truncMillis(t time.Time) time.Time {
	return fromMillis(toMillis(t))
}

func truncMillisPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := truncMillis(*t)
	return &v
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func strPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	i := int(n.Int64)
	return &i
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	i := n.Int64
	return &i
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}

// encodeList stores a string list as JSON text; nil stays NULL.
func encodeList(field string, list []string) (sql.NullString, error) {
	if list == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("%w: %s: %w", ErrSerialization, field, err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// decodeList reverses encodeList. NULL decodes to nil.
func decodeList(field string, s sql.NullString) ([]string, error) {
	if !s.Valid {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s.String), &list); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSerialization, field, err)
	}
	return list, nil
}

// encodeObject stores raw JSON after checking it parses; empty stays NULL.
func encodeObject(field string, raw json.RawMessage) (sql.NullString, error) {
	if len(raw) == 0 {
		return sql.NullString{}, nil
	}
	if !json.Valid(raw) {
		return sql.NullString{}, fmt.Errorf("%w: %s: invalid JSON", ErrSerialization, field)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeObject(field string, s sql.NullString) (json.RawMessage, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	if !json.Valid([]byte(s.String)) {
		return nil, fmt.Errorf("%w: %s: invalid JSON", ErrSerialization, field)
	}
	return json.RawMessage(s.String), nil
}
