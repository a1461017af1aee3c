// Package logger is the structured logging surface of quarry connections.
// Anything with Debug/Info/Warn/Error over key-value pairs can be plugged
// in; log/slog is supported out of the box.
package logger

import (
	"context"
	"log/slog"
	"time"
)

// Logger receives key-value structured records.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	// With returns a Logger that prepends args to every record.
	With(args ...any) Logger
}

// DebugEnabler is implemented by loggers that can tell whether debug
// records would be dropped, letting callers skip building them.
type DebugEnabler interface {
	DebugEnabled() bool
}

// NoopLogger discards everything. Connections use it until a logger is set.
type NoopLogger struct{}

func (n *NoopLogger) Debug(_ string, _ ...any) {}
func (n *NoopLogger) Info(_ string, _ ...any)  {}
func (n *NoopLogger) Warn(_ string, _ ...any)  {}
func (n *NoopLogger) Error(_ string, _ ...any) {}
func (n *NoopLogger) With(_ ...any) Logger     { return n }

// DebugEnabled reports false.
func (n *NoopLogger) DebugEnabled() bool { return false }

// SlogAdapter logs through a *slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps l, or slog.Default() when l is nil.
func NewSlogAdapter(l *slog.Logger) *SlogAdapter {
	if l == nil {
		l = slog.Default()
	}
	return &SlogAdapter{logger: l}
}

func (a *SlogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *SlogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }

func (a *SlogAdapter) With(args ...any) Logger {
	return &SlogAdapter{logger: a.logger.With(args...)}
}

// DebugEnabled asks the handler whether debug records are kept.
func (a *SlogAdapter) DebugEnabled() bool {
	return a.logger.Enabled(context.Background(), slog.LevelDebug)
}

// Statement is one executed statement as written to the log.
type Statement struct {
	SQL          string
	Bindings     []any
	Duration     time.Duration
	RowsAffected int64
	Pretend      bool
	Retried      bool
	Err          error
}

// LogStatement writes st: failures at Error, successes at Debug. Bindings
// pass through s before they are formatted; a nil s formats them as is.
// Successful statements are not formatted at all when l reports debug
// disabled.
func LogStatement(l Logger, s *Sanitizer, st Statement) {
	if st.Err == nil {
		if de, ok := l.(DebugEnabler); ok && !de.DebugEnabled() {
			return
		}
	}

	if s == nil {
		s = defaultSanitizer
	}
	args := []any{
		"sql", st.SQL,
		"params", s.FormatParams(s.MaskParams(st.SQL, st.Bindings)),
		"duration_ms", float64(st.Duration.Microseconds()) / 1000.0,
	}
	if st.Retried {
		args = append(args, "retried", true)
	}

	if st.Err != nil {
		l.Error("query execution failed", append(args, "error", st.Err)...)
		return
	}
	args = append(args, "rows_affected", st.RowsAffected)
	if st.Pretend {
		args = append(args, "pretend", true)
	}
	l.Debug("query executed", args...)
}

var defaultSanitizer = NewSanitizer(nil)
