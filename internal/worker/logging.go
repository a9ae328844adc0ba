package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a structured logger writing to stdout.
// level: "debug", "info", "warn", "error" (defaults to info if invalid)
// format: "json" for JSON output, anything else for human-readable text
func NewLogger(level, format string) *slog.Logger {
	return newLogger(os.Stdout, level, format)
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a LOG_LEVEL value onto a slog level
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

// asynqLogger routes asynq's internal logging through slog
type asynqLogger struct {
	*slog.Logger
}

func newAsynqLogger(l *slog.Logger) asynqLogger {
	return asynqLogger{l.With("component", "asynq")}
}

func (l asynqLogger) log(level slog.Level, args []interface{}) {
	l.Logger.Log(context.Background(), level, fmt.Sprint(args...))
}

func (l asynqLogger) Debug(args ...interface{}) { l.log(slog.LevelDebug, args) }
func (l asynqLogger) Info(args ...interface{})  { l.log(slog.LevelInfo, args) }
func (l asynqLogger) Warn(args ...interface{})  { l.log(slog.LevelWarn, args) }
func (l asynqLogger) Error(args ...interface{}) { l.log(slog.LevelError, args) }

// Fatal is only called by asynq on unrecoverable startup failures
func (l asynqLogger) Fatal(args ...interface{}) {
	l.log(slog.LevelError, args)
	panic(fmt.Sprint(args...))
}
