package vecdb

import (
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the interface the coordinator and its collaborators log
// through, adapted from the teacher's pkg/core Logger: same four levels
// plus With for attaching persistent key-values, backed here by
// log/slog instead of a hand-rolled formatter.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

// slogLogger adapts *slog.Logger to the Logger interface.
type slogLogger struct {
	l *slog.Logger
}

// NewLogger creates a Logger that emits JSON lines at minLevel and above.
// Passing a nil writer logs to stderr.
func NewLogger(w *lumberjack.Logger, minLevel slog.Level) Logger {
	var handler slog.Handler
	if w == nil {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: minLevel})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: minLevel})
	}
	return &slogLogger{l: slog.New(handler)}
}

// NewRotatingFileLogger creates a Logger that writes JSON lines to path,
// rotated by lumberjack once it exceeds maxSizeMB.
func NewRotatingFileLogger(path string, maxSizeMB, maxBackups, maxAgeDays int) Logger {
	return NewLogger(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}, slog.LevelInfo)
}

func (s *slogLogger) Debug(msg string, keyvals ...any) { s.l.Debug(msg, keyvals...) }
func (s *slogLogger) Info(msg string, keyvals ...any)  { s.l.Info(msg, keyvals...) }
func (s *slogLogger) Warn(msg string, keyvals ...any)  { s.l.Warn(msg, keyvals...) }
func (s *slogLogger) Error(msg string, keyvals ...any) { s.l.Error(msg, keyvals...) }

func (s *slogLogger) With(keyvals ...any) Logger {
	return &slogLogger{l: s.l.With(keyvals...)}
}

// nopLogger discards everything, used as the coordinator's default when
// no logger is configured.
type nopLogger struct{}

func (nopLogger) Debug(msg string, keyvals ...any) {}
func (nopLogger) Info(msg string, keyvals ...any)  {}
func (nopLogger) Warn(msg string, keyvals ...any)  {}
func (nopLogger) Error(msg string, keyvals ...any) {}
func (n nopLogger) With(keyvals ...any) Logger     { return n }

// NopLogger returns a Logger that discards all messages.
func NopLogger() Logger { return nopLogger{} }
