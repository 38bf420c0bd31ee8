// Package logging provides structured logging for the SHSF hub.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same fields and format.
//
// # Features
//
//   - Text output for interactive use on the Pi desktop
//   - JSON output when running headless under systemd/journald
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("relay started", "queue_size", 64)
//	bleLog := logger.With("component", "ble")
//
// Never log MQTT passwords or the InfluxDB token.
package logging
