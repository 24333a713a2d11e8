package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger creates a dual-output logger: text to console, JSON to file.
// A nil console logs to the file only, which keeps the live view clean.
// Returns the logger and a cleanup function to close the file.
func SetupLogger(logFile string, level slog.Level, console io.Writer) (*slog.Logger, func() error) {
	var handlers []slog.Handler
	if console != nil {
		// Console handler (text for readability)
		handlers = append(handlers, slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}))
	}

	file, err := openLogFile(logFile)
	if err != nil {
		// Fall back to console (or stderr) only if the file fails
		if console == nil {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		}
		logger := slog.New(slogmulti.Fanout(handlers...))
		logger.Error("failed to open log file, logging to console only", "error", err, "file", logFile)
		return logger, func() error { return nil }
	}

	// File handler (JSON for machine parsing)
	handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}))

	logger := slog.New(slogmulti.Fanout(handlers...))
	return logger, file.Close
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// SetupLoggerWithWriters creates a logger with custom writers (for testing).
func SetupLoggerWithWriters(console, file io.Writer, level slog.Level) *slog.Logger {
	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{Level: level})
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(consoleHandler, fileHandler))
}
