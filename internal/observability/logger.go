// Package observability provides structured logging for scvv.
package observability

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jmylchreest/scvv/internal/config"
)

// Attribute keys shared by every component.
const (
	KeyComponent = "component"
	KeySession   = "session_id"
	KeyRequestID = "request_id"
)

type requestIDKey struct{}

// NewLoggerWithWriter builds a JSON or text logger from cfg writing to w.
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}
	if cfg.TimeFormat != "" {
		opts.ReplaceAttr = formatTime(cfg.TimeFormat)
	}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// formatTime rewrites the record timestamp using layout.
func formatTime(layout string) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 || a.Key != slog.TimeKey {
			return a
		}
		if t, ok := a.Value.Any().(time.Time); ok {
			return slog.String(slog.TimeKey, t.Format(layout))
		}
		return a
	}
}

// ParseLevel converts a level name to slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// WithComponent tags the logger with the emitting component.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String(KeyComponent, component))
}

// WithSession tags the logger with a playback session ID.
func WithSession(logger *slog.Logger, sessionID string) *slog.Logger {
	return logger.With(slog.String(KeySession, sessionID))
}

// WithRequestID tags the logger with a status API request ID.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	if requestID == "" {
		return logger
	}
	return logger.With(slog.String(KeyRequestID, requestID))
}

// ContextWithRequestID stores a request ID on ctx.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request ID stored on ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// TimedOperationWithError returns a func that logs how long operation took.
// errPtr is read when the func runs, so assign to it before returning:
//
//	var err error
//	defer observability.TimedOperationWithError(ctx, logger, "fetch_manifest", &err)()
//
//nolint:gocritic // errPtr must be a pointer to capture errors set after this call
func TimedOperationWithError(ctx context.Context, logger *slog.Logger, operation string, errPtr *error) func() {
	start := time.Now()
	return func() {
		attrs := []slog.Attr{
			slog.String("operation", operation),
			slog.Duration("duration", time.Since(start)),
		}
		if errPtr != nil && *errPtr != nil {
			attrs = append(attrs, slog.String("error", (*errPtr).Error()))
			logger.LogAttrs(ctx, slog.LevelWarn, "operation failed", attrs...)
			return
		}
		logger.LogAttrs(ctx, slog.LevelDebug, "operation completed", attrs...)
	}
}
