// Package logging provides structured logging for the gateway.
//
// This package wraps log/slog to provide consistent, structured logging
// across the adapter session layer and the server connector.
//
// # Features
//
//   - JSON output for production, text for development
//   - Default fields (service, component) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "hci")
//	logger.Info("adapter up", "adapter", "hci0")
//	logger.Error("connect failed", "error", err)
package logging
