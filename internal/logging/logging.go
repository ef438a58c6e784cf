package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Logger is a structured console logger. Arguments after the message are
// key/value pairs.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger writing to stdout at info level.
func NewLogger() *Logger {
	return New(os.Stdout, "info")
}

// New creates a Logger writing tinted output to w. Unknown levels fall back
// to info.
func New(w io.Writer, level string) *Logger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:      ParseLevel(level),
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal(w),
	})
	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, "error")
}

// ParseLevel maps a config string onto a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// With returns a Logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
