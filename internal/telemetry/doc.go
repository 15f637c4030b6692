// Package telemetry reports storage usage to a time-series database.
//
// Each report writes row counts per table, disk usage of the database file
// and the cache and documents directories, and the cumulative store
// operation counters gathered from the Prometheus registry. Counts are
// read with one short database call; the directory walks and writes happen
// after the connection is released.
package telemetry
