// Package logging provides structured logging for Gray Logic Video.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same format and default fields.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
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
//	logger.Info("video stream connected", "address", addr)
//	output.SetLogger(logger.With("component", "video"))
//
// # Security
//
// Never log secrets, tokens or passwords. Camera addresses that embed
// credentials must not be logged verbatim.
package logging
