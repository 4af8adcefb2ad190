// Package logging provides structured logging for Inkframe.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the appliance.
//
// # Features
//
//   - JSON output for unattended runs (machine-parsable, journald friendly)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
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
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("wake cycle started", "cycle_id", id)
//	logger.Error("failed to set alarm", "error", err)
//
// Never log MQTT credentials.
package logging
