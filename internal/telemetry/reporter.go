package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/nerrad567/dealer-core/internal/housekeeping"
	"github.com/nerrad567/dealer-core/internal/infrastructure/logging"
)

// OperationsMetric is the store counter family forwarded on every report.
const OperationsMetric = "dealercore_store_operations_total"

// Disk usage areas.
const (
	AreaDatabase  = "database"
	AreaCache     = "cache"
	AreaDocuments = "documents"
)

// Writer receives points. *influxdb.Client satisfies it.
type Writer interface {
	WriteTableRows(table string, rows int64, at time.Time)
	WriteDiskUsage(area string, bytes, files int64, at time.Time)
	WriteOperations(entity, operation, outcome string, count float64, at time.Time)
	Flush()
}

// Counter supplies row counts. *store.Store satisfies it.
type Counter interface {
	TableCounts(ctx context.Context) (map[string]int64, error)
}

// Options configures a Reporter. Empty paths are skipped.
type Options struct {
	DatabasePath string
	CacheDir     string
	DocumentsDir string

	// Gatherer is read for OperationsMetric. Nil skips operation counts.
	Gatherer prometheus.Gatherer

	Logger *logging.Logger
	Now    func() time.Time
}

// Reporter gathers storage figures and hands them to a Writer.
type Reporter struct {
	counter Counter
	writer  Writer
	opts    Options
	logger  *logging.Logger
	now     func() time.Time
}

// NewReporter builds a Reporter.
func NewReporter(counter Counter, writer Writer, opts Options) *Reporter {
	r := &Reporter{
		counter: counter,
		writer:  writer,
		opts:    opts,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if r.logger == nil {
		r.logger = logging.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.logger = r.logger.With("component", "telemetry")
	return r
}

// Report writes one set of points, all stamped with the same time.
//
// Each source is independent: a failing one is skipped and reported in
// the returned error while the others are still written.
func (r *Reporter) Report(ctx context.Context) error {
	at := r.now()
	var errs []error

	counts, err := r.counter.TableCounts(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("counting rows: %w", err))
	}
	for table, n := range counts {
		r.writer.WriteTableRows(table, n, at)
	}

	if err := r.reportDisk(at); err != nil {
		errs = append(errs, err)
	}

	if err := r.reportOperations(at); err != nil {
		errs = append(errs, err)
	}

	r.writer.Flush()
	return errors.Join(errs...)
}

func (r *Reporter) reportDisk(at time.Time) error {
	var errs []error

	if path := r.opts.DatabasePath; path != "" {
		bytes, files, err := housekeeping.DatabaseSize(path)
		if err != nil {
			errs = append(errs, err)
		}
		r.writer.WriteDiskUsage(AreaDatabase, bytes, files, at)
	}

	for _, d := range []struct{ area, dir string }{
		{AreaCache, r.opts.CacheDir},
		{AreaDocuments, r.opts.DocumentsDir},
	} {
		if d.dir == "" {
			continue
		}
		bytes, files, err := housekeeping.DirSize(d.dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.writer.WriteDiskUsage(d.area, bytes, files, at)
	}

	return errors.Join(errs...)
}

func (r *Reporter) reportOperations(at time.Time) error {
	if r.opts.Gatherer == nil {
		return nil
	}

	families, err := r.opts.Gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	for _, mf := range families {
		if mf.GetName() != OperationsMetric || mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := labelMap(m.GetLabel())
			r.writer.WriteOperations(labels["entity"], labels["operation"], labels["outcome"], m.GetCounter().GetValue(), at)
		}
	}
	return nil
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		out[p.GetName()] = p.GetValue()
	}
	return out
}

// Run reports every interval until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.reportAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reportAndLog(ctx)
		}
	}
}

func (r *Reporter) reportAndLog(ctx context.Context) {
	if err := r.Report(ctx); err != nil && ctx.Err() == nil {
		r.logger.Warn("telemetry report incomplete", "error", err)
	}
}
