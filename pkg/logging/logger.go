// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. Zero-value fields fall back
// to DefaultConfig, so Setup(Config{}) yields a working info-level JSON
// logger on stderr.
func Setup(cfg Config) zerolog.Logger {
	def := DefaultConfig()
	if cfg.Level == "" {
		cfg.Level = def.Level
	}
	if cfg.Output == nil {
		cfg.Output = def.Output
	}

	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Pooled connection lifecycle (create, reuse, reap)
//   - Endpoint success reports and retry backoff waits
//   - Health probe results
//
// Info: Normal operation events
//   - Region switches (explicit and latency-driven)
//   - Recovery after retry or failover
//   - Manager and pool startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Endpoint flipped unhealthy after consecutive failures
//   - Pool exhaustion (caller waits timed out)
//   - Retry budget exhausted for one operation
//
// Error: Error conditions requiring attention
//   - All regions unhealthy
//   - Configuration errors at startup
//
// Context Fields:
//   - component: emitting subsystem (endpoint-manager, connection-pool, executor)
//   - endpoint: regional endpoint address
//   - region: region code (eu, us, sa)
//   - operation: logical BWS operation name (verify, enroll, ...)
//   - latency: last measured round trip
//   - consecutive_failures: current failure streak for an endpoint
//   - conn_id: pooled connection identifier
