package store

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments store operations. A nil *Metrics records nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	schemaVersion prometheus.Gauge
}

// NewMetrics creates the store collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealercore",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations by entity, operation and outcome.",
		}, []string{"entity", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dealercore",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in store operations, including waiting for the connection.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"entity", "operation"}),
		schemaVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dealercore",
			Subsystem: "store",
			Name:      "schema_version",
			Help:      "Schema version of the open database.",
		}),
	}
	reg.MustRegister(m.operations, m.duration, m.schemaVersion)
	return m
}

// observe is deferred by every public store method with a pointer to its
// named error result.
func (m *Metrics) observe(entity, op string, start time.Time, errp *error) {
	if m == nil {
		return
	}
	var err error
	if errp != nil {
		err = *errp
	}
	m.operations.WithLabelValues(entity, op, outcome(err)).Inc()
	m.duration.WithLabelValues(entity, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) setSchemaVersion(v int) {
	if m == nil {
		return
	}
	m.schemaVersion.Set(float64(v))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFoundOrForbidden):
		return "not_found"
	case errors.Is(err, ErrMissingTenant):
		return "missing_tenant"
	case errors.Is(err, ErrDuplicateKey):
		return "duplicate"
	case errors.Is(err, ErrInUse), errors.Is(err, ErrInvalidReference), errors.Is(err, ErrInvalidInput):
		return "rejected"
	default:
		return "error"
	}
}
