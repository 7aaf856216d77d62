// Package logging provides structured logging for the edge agent.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same handler, level and default fields.
//
// # Features
//
//   - JSON output for production (machine-parsable)
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
//	logger := logging.New(cfg.Logging, version)
//	orchLog := logger.Component("orchestrator")
//	orchLog.Info("phase change", "to", "ready")
//
// # Security
//
// Never log secrets, private keys or derived broker passwords. Credentials
// are logged by method and broker address only.
package logging
