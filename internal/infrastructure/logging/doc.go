// Package logging provides structured logging for dealer-core.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text when developing, with service and version attached to
// every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("database opened", "path", db.Path())
//	logger.Error("migration failed", "error", err)
//
// Never log customer data beyond ids. Names, licence numbers and deal
// amounts stay out of log lines.
package logging
