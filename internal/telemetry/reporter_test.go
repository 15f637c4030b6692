package telemetry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/dealer-core/internal/infrastructure/database"
	"github.com/nerrad567/dealer-core/internal/infrastructure/logging"
	"github.com/nerrad567/dealer-core/internal/store"
	"github.com/nerrad567/dealer-core/migrations"
)

type diskPoint struct {
	bytes, files int64
}

type opKey struct {
	entity, operation, outcome string
}

type fakeWriter struct {
	mu      sync.Mutex
	rows    map[string]int64
	disk    map[string]diskPoint
	ops     map[opKey]float64
	times   []time.Time
	flushes int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		rows: map[string]int64{},
		disk: map[string]diskPoint{},
		ops:  map[opKey]float64{},
	}
}

func (w *fakeWriter) WriteTableRows(table string, rows int64, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows[table] = rows
	w.times = append(w.times, at)
}

func (w *fakeWriter) WriteDiskUsage(area string, bytes, files int64, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disk[area] = diskPoint{bytes, files}
	w.times = append(w.times, at)
}

func (w *fakeWriter) WriteOperations(entity, operation, outcome string, count float64, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ops[opKey{entity, operation, outcome}] = count
	w.times = append(w.times, at)
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
}

func (w *fakeWriter) flushCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushes
}

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (c fakeCounter) TableCounts(context.Context) (map[string]int64, error) {
	return c.counts, c.err
}

var reportTime = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func writeSized(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestReport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "dealer.db")
	writeSized(t, dbPath, 8192)
	writeSized(t, dbPath+"-wal", 1024)
	writeSized(t, filepath.Join(dir, "cache", "a.jpg"), 300)
	writeSized(t, filepath.Join(dir, "cache", "b.jpg"), 200)

	reg := prometheus.NewRegistry()
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealercore", Subsystem: "store", Name: "operations_total",
	}, []string{"entity", "operation", "outcome"})
	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "unrelated_total"})
	reg.MustRegister(ops, other)
	ops.WithLabelValues("client", "create", "ok").Add(3)
	ops.WithLabelValues("vehicle", "create", "duplicate").Inc()
	other.Inc()

	w := newFakeWriter()
	r := NewReporter(fakeCounter{counts: map[string]int64{"clients": 4, "deals": 2}}, w, Options{
		DatabasePath: dbPath,
		CacheDir:     filepath.Join(dir, "cache"),
		DocumentsDir: filepath.Join(dir, "documents"),
		Gatherer:     reg,
		Logger:       logging.Discard(),
		Now:          func() time.Time { return reportTime },
	})

	require.NoError(t, r.Report(context.Background()))

	assert.Equal(t, map[string]int64{"clients": 4, "deals": 2}, w.rows)
	assert.Equal(t, map[string]diskPoint{
		AreaDatabase:  {bytes: 9216, files: 2},
		AreaCache:     {bytes: 500, files: 2},
		AreaDocuments: {bytes: 0, files: 0},
	}, w.disk)
	assert.Equal(t, map[opKey]float64{
		{"client", "create", "ok"}:         3,
		{"vehicle", "create", "duplicate"}: 1,
	}, w.ops)
	assert.Equal(t, 1, w.flushes)

	for _, at := range w.times {
		assert.Equal(t, reportTime, at)
	}
}

func TestReportContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, filepath.Join(dir, "docs", "x.pdf"), 10)

	w := newFakeWriter()
	r := NewReporter(fakeCounter{err: errors.New("database is locked")}, w, Options{
		DocumentsDir: filepath.Join(dir, "docs"),
		Logger:       logging.Discard(),
	})

	err := r.Report(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")

	assert.Empty(t, w.rows)
	assert.Equal(t, diskPoint{bytes: 10, files: 1}, w.disk[AreaDocuments])
	assert.NotContains(t, w.disk, AreaDatabase)
	assert.Equal(t, 1, w.flushes)
}

func TestReportWithStore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "dealer.db")
	db, err := database.Open(database.Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx, migrations.All()))

	reg := prometheus.NewRegistry()
	s, err := store.New(ctx, db, store.WithLogger(logging.Discard()), store.WithMetrics(store.NewMetrics(reg)))
	require.NoError(t, err)
	_, err = s.CreateClient(ctx, "user-1", store.Client{FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)

	w := newFakeWriter()
	r := NewReporter(s, w, Options{DatabasePath: dbPath, Gatherer: reg, Logger: logging.Discard()})
	require.NoError(t, r.Report(ctx))

	assert.Equal(t, int64(1), w.rows["clients"])
	assert.Equal(t, int64(1), w.rows["sync_log"])
	assert.Positive(t, w.disk[AreaDatabase].bytes)
	assert.Equal(t, 1.0, w.ops[opKey{store.EntityClient, store.OpCreate, "ok"}])
}

func TestRunStopsOnCancel(t *testing.T) {
	w := newFakeWriter()
	r := NewReporter(fakeCounter{counts: map[string]int64{}}, w, Options{Logger: logging.Discard()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return w.flushCount() >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
