// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
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

// Output formats accepted by PrettyFor.
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// NoColor disables ANSI colors in pretty output.
	NoColor bool

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

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor,
		}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// PrettyFor resolves a configured format to the Pretty flag. "auto" picks
// console output when w is a terminal.
func PrettyFor(format string, w io.Writer) bool {
	switch strings.ToLower(format) {
	case FormatConsole:
		return true
	case FormatJSON:
		return false
	default:
		return IsTerminal(w)
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
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
//   - Request flow (endpoint, method, auth flag)
//   - Cache operations (hit/miss, key, TTL, revalidation)
//   - Blob handle acquire/release
//   - Discarded stale gallery pages
//
// Info: Normal operation events
//   - Sign-in, sign-out
//   - Gallery resets and loaded pages
//   - Sign-in redirects scheduled on 401
//
// Warn: Warning conditions that don't prevent operation
//   - 4xx/5xx responses
//   - Retry attempts
//   - Cache errors (fallback to direct request)
//   - Per-item image failures
//
// Error: Error conditions requiring attention
//   - Transport failures (no response, unreadable body)
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package ("api-client", "blob", "gallery", ...)
//   - endpoint: API path, image paths collapsed to /api/v1/images/*
//   - status: HTTP status code
//   - error_class: success, client, auth, server, other, network
//   - filter, sort, offset, total: gallery position
//   - path, local_url: blob source and handle
//   - etag, ttl: cache validators and lifetime
