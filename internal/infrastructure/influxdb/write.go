package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by dealer-core.
const (
	MeasurementRows       = "store_rows"
	MeasurementDisk       = "store_disk"
	MeasurementOperations = "store_operations"
)

// WriteTableRows records the row count of one store table.
//
// Example:
//
//	client.WriteTableRows("deals", 412, time.Now())
func (c *Client) WriteTableRows(table string, rows int64, at time.Time) {
	c.write(tableRowsPoint(table, rows, at))
}

// WriteDiskUsage records the size of one on-disk area (database, cache,
// documents).
func (c *Client) WriteDiskUsage(area string, bytes, files int64, at time.Time) {
	c.write(diskUsagePoint(area, bytes, files, at))
}

// WriteOperations records the cumulative count of one store operation
// outcome.
func (c *Client) WriteOperations(entity, operation, outcome string, count float64, at time.Time) {
	c.write(operationsPoint(entity, operation, outcome, count, at))
}

// write is non-blocking; points are batched and errors arrive through
// the callback given to Connect. Writes on a closed client are dropped.
func (c *Client) write(p *write.Point) {
	c.withWriter(func(w api.WriteAPI) { w.WritePoint(p) })
}

func tableRowsPoint(table string, rows int64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementRows,
		map[string]string{"table": table},
		map[string]any{"rows": rows},
		at,
	)
}

func diskUsagePoint(area string, bytes, files int64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementDisk,
		map[string]string{"area": area},
		map[string]any{"bytes": bytes, "files": files},
		at,
	)
}

func operationsPoint(entity, operation, outcome string, count float64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementOperations,
		map[string]string{
			"entity":    entity,
			"operation": operation,
			"outcome":   outcome,
		},
		map[string]any{"count": count},
		at,
	)
}
