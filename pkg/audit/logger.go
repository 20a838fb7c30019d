package audit

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/taskdesk/pkg/contextkeys"
)

// Logger records audit events
type Logger interface {
	// Log records an event. Implementations must be safe for concurrent use.
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the logger
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext returns the audit logger in ctx, or a no-op logger
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NoOp()
}

// enrich fills the timestamp and the request fields the caller left empty
func enrich(ctx context.Context, event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}
	if event.IPAddress == "" {
		event.IPAddress = contextkeys.GetClientIP(ctx)
	}
}

type noOpLogger struct{}

// NoOp returns a logger that discards events
func NoOp() Logger {
	return noOpLogger{}
}

func (noOpLogger) Log(ctx context.Context, event *Event) error { return nil }
func (noOpLogger) Close() error                                { return nil }

// MultiLogger fans events out to several loggers
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger writing to every given logger
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes to every logger and joins their errors
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every logger
func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Int64 returns a pointer to v for Event.UserID
func Int64(v int64) *int64 {
	return &v
}
