// Package logging configures the process logger and classifies Discord
// errors for log levels and retries.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a JSON logger on w. debug lowers the level and adds source
// locations.
func New(w io.Writer, debug bool) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Setup installs New(os.Stdout, debug) as the default logger.
func Setup(debug bool) *slog.Logger {
	logger := New(os.Stdout, debug)
	slog.SetDefault(logger)
	return logger
}
