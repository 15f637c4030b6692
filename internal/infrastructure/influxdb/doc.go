// Package influxdb provides InfluxDB connectivity for storage telemetry.
//
// It wraps the official influxdb-client-go v2 library: Connect checks the
// server's health endpoint, then the store's measurements are written
// through the batched, non-blocking write API.
//
// # Measurements
//
//	store_rows        table=<name>                          rows
//	store_disk        area=<database|cache|documents>        bytes, files
//	store_operations  entity=, operation=, outcome=         count
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.Telemetry.InfluxDB, func(err error) {
//	    log.Error("influxdb write failed", "error", err)
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTableRows("clients", 120, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered to the
// callback passed to Connect. Connection and health check errors are
// returned directly.
package influxdb
