// Package logging provides structured logging for PrintWatch.
//
// It wraps log/slog so every component logs with the same handler, level
// filter and default fields (service, version).
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
//	logger.Info("printer located", "ip", addr)
//
// Never log the bot token, the printer key or JWT secrets.
package logging
