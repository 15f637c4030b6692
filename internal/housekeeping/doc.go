// Package housekeeping keeps the application's data directory in shape.
//
// It never touches the database connection: cache eviction and size
// accounting are plain filesystem walks, safe to run while the store is in
// use.
package housekeeping
