package audit

import (
	"context"
	"errors"
	"net/http"
)

// MultiLogger fans audit events out to multiple sinks, for example a
// structured log line plus a database row. Every sink receives every
// event; errors are collected, not short-circuited.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that writes to all given sinks
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log sends the event to every sink
func (l *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, logger := range l.loggers {
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogAuthentication logs an authentication lifecycle event to every sink
func (l *MultiLogger) LogAuthentication(ctx context.Context, r *http.Request, eventType EventType, username string, status EventStatus, message string) error {
	event := NewEvent(ctx, r, eventType, status)
	event.Username = username
	event.Message = message
	return l.Log(ctx, event)
}

// Close closes all sinks
func (l *MultiLogger) Close() error {
	var errs []error
	for _, logger := range l.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
