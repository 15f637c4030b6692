// Package config handles loading and validating dealer-core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with DEALERCORE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - development.allow_clear_all must never be set on a dealer's machine
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
package config
