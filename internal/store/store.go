package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/dealer-core/internal/infrastructure/database"
	"github.com/nerrad567/dealer-core/internal/infrastructure/logging"
)

// Store is the entity access layer over one database.
//
// Clients and deals are tenant-scoped: every call takes the tenant id and
// rows of other tenants behave as if they did not exist. Vehicles and
// documents are shared by all users of the file.
//
// Every method holds the database connection for its whole duration and
// releases it before returning.
type Store struct {
	db      *database.DB
	schema  schema
	now     func() time.Time
	logger  *logging.Logger
	metrics *Metrics

	allowClearAll bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger. Defaults to logging.Default().
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics records operation counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// AllowClearAll enables ClearAll. Only development tooling should pass it.
func AllowClearAll() Option {
	return func(s *Store) { s.allowClearAll = true }
}

// New builds a Store for db from the migrations it has recorded.
//
// The database should already be migrated. An older schema is accepted for
// reads of the tables it has; writes and tenant-scoped operations that need
// columns it lacks fail with ErrSchemaOutdated.
func New(ctx context.Context, db *database.DB, opts ...Option) (*Store, error) {
	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	sch, ok := schemaFor(applied)
	if !ok {
		return nil, fmt.Errorf("%w: database has migrations %v", ErrSchemaOutdated, applied)
	}
	version := sch.version

	s := &Store{
		db:     db,
		schema: sch,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	s.metrics.setSchemaVersion(version)

	s.logger.Debug("store ready", "schema_version", version)
	return s, nil
}

// SchemaVersion is the schema version the store was built against.
func (s *Store) SchemaVersion() int {
	return s.schema.version
}

// timestamp is the current time at database precision.
func (s *Store) timestamp() time.Time {
	return truncMillis(s.now())
}

// touch returns a new updated_at strictly after prev.
func (s *Store) touch(prev time.Time) time.Time {
	now := s.timestamp()
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return now
}

// stamp fills creation timestamps left zero by the caller.
func (s *Store) stamp(created, updated *time.Time) {
	if created.IsZero() {
		*created = s.timestamp()
	} else {
		*created = truncMillis(*created)
	}
	if updated.IsZero() {
		*updated = *created
	} else {
		*updated = truncMillis(*updated)
	}
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func requireTenant(tenant string) error {
	if strings.TrimSpace(tenant) == "" {
		return ErrMissingTenant
	}
	return nil
}

// scoped checks a table layout carries the tenant column.
func scoped(l layout) error {
	if !l.has("user_id") {
		return fmt.Errorf("%w: %s has no tenant column", ErrSchemaOutdated, l.table)
	}
	return nil
}

// writable checks a table is at its newest layout. Writing through an
// older layout would silently drop the newer columns.
func writable(l layout, all tableLayouts) error {
	if l.since != all.latest().since {
		return fmt.Errorf("%w: %s must be migrated before writing", ErrSchemaOutdated, l.table)
	}
	return nil
}

// where accumulates "col = ?" conditions.
type where struct {
	conds []string
	args  []any
}

func (w *where) eq(col string, v any) {
	w.conds = append(w.conds, col+" = ?")
	w.args = append(w.args, v)
}

// eqIf adds the condition only for non-empty v.
func (w *where) eqIf(col, v string) {
	if v != "" {
		w.eq(col, v)
	}
}

// search adds a case-insensitive substring match over cols.
func (w *where) search(query string, cols ...string) {
	pattern := likePattern(query)
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = "casefold(COALESCE(" + c + ", '')) LIKE casefold(?) ESCAPE '\\'"
		w.args = append(w.args, pattern)
	}
	w.conds = append(w.conds, "("+strings.Join(parts, " OR ")+")")
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern makes query a literal substring pattern.
func likePattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}

// recordChange appends to the sync outbox inside the caller's transaction.
// Databases older than the outbox skip it.
func (s *Store) recordChange(ctx context.Context, tx database.Querier, entity, id, op, tenant string) error {
	if !s.schema.hasLog {
		return nil
	}

	values := map[string]any{
		"entity_type": entity,
		"entity_id":   id,
		"operation":   op,
		"created_at":  toMillis(s.timestamp()),
	}
	if tenant != "" {
		values["user_id"] = tenant
	}

	cols := make([]string, 0, len(values))
	for _, c := range s.schema.syncLog.columns {
		if _, ok := values[c]; ok {
			cols = append(cols, c)
		}
	}

	query := "INSERT INTO sync_log (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	if _, err := tx.ExecContext(ctx, query, args(values, cols)...); err != nil {
		return fmt.Errorf("recording change: %w", err)
	}
	return nil
}
