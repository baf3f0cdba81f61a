package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LogFile is the project log, relative to the state directory.
const LogFile = "logs/lvjb.log"

// Level maps the configured log_level to a slog level.
func Level(n int) slog.Level {
	switch {
	case n <= 0:
		return slog.LevelWarn
	case n == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// OpenLog appends structured log lines to <stateDir>/logs/lvjb.log.
// The returned closer releases the file.
func OpenLog(stateDir string, level int) (*slog.Logger, io.Closer, error) {
	path := filepath.Join(stateDir, LogFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("diag: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("diag: open log file: %w", err)
	}
	return NewLogger(f, level), f, nil
}

// NewLogger returns a text logger writing to w.
func NewLogger(w io.Writer, level int) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level(level)}))
}

// NopLogger drops every record.
func NopLogger() *slog.Logger {
	return NewLogger(io.Discard, 0)
}
