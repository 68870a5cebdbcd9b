// Package logging wraps log/slog with gateway-specific defaults: JSON or
// text output, level filtering from configuration, and a default logger
// for use before configuration is loaded.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/outpost-iot/btgateway/internal/infrastructure/config"
)

// Logger wraps slog.Logger with the gateway's structured-logging
// conventions. All methods are safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from the given configuration and component name.
func New(cfg config.LoggingConfig, component string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "btgateway"),
		slog.String("component", component),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel converts a config level string to slog.Level, defaulting to
// info for anything unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes attached,
// e.g. logger.With("mac", mac.String()).
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a logger for use during early startup, before
// configuration has been loaded: stdout, JSON, info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "bootstrap")
}
