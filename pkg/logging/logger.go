// Package logging configures zerolog for the adapter.
//
// The MCP stdio transport owns stdout for protocol frames, so logs always go
// to stderr unless a different writer is configured explicitly.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
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

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel validates a configured level name.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", name)
	}
}

func parseLevel(level LogLevel) zerolog.Level {
	parsed, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch parsed {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
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
// Debug: per-page flow
//   - Page requests (operation, batch_size, cursor_present)
//   - Strategy decisions (strategy, source, strain)
//   - Rate limit state updates while the quota is healthy
//
// Info: completed work
//   - Retrievals that finished (calls, items, elapsed)
//   - Client profile detections
//   - Server startup/shutdown
//
// Warn: degraded but served
//   - Partial results and early stops
//   - Low or exhausted rate limit, refused fetches
//   - Retry attempts, size hint store failures
//
// Error: failed work
//   - First-page fetch failures returned to the caller
//   - Transport errors talking to Instantly
//   - Configuration errors
//
// Context Fields:
//   - component: Package or subsystem emitting the log
//   - session_id: Retrieval session identifier
//   - operation: Collection (accounts, campaigns, leads, emails)
//   - strategy: Selected strategy name
//   - client_profile: Detected client profile
//   - batch_size: Requested page size
//   - cursor_present: Whether the request continues a walk
//   - items: Items returned
//   - remaining: Requests left in the rate limit window
//   - retry_after: Wait until the rate limit window resets
//   - error_class: Error classification (client, server, rate_limit, network)
