// Package logger wraps log/slog with the gateway's logging configuration.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger embeds *slog.Logger so the usual Info/Warn/Error/Debug methods
// are available directly.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level  string `yaml:"level" json:"level"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" json:"format"` // "text", "json"
	Output string `yaml:"output" json:"output"` // "stdout", "stderr", "file"
	File   string `yaml:"file" json:"file"`     // log file path when output is "file"
}

// New creates a logger from config. A file output that cannot be opened
// falls back to stdout rather than failing startup.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(config.Level)}

	var writer io.Writer = os.Stdout
	switch config.Output {
	case "stderr":
		writer = os.Stderr
	case "file":
		if config.File != "" {
			if f, err := os.OpenFile(config.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
				writer = f
			}
		}
	}

	var handler slog.Handler
	if strings.EqualFold(config.Format, "json") {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Component returns a child logger tagged with the component name, so
// bridge/engine/transport lines are distinguishable in one stream.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.With("component", name)}
}

// Discard returns a logger that drops everything; used by tests and as
// a nil-safe default in constructors.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
