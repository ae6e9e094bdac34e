package audit

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
)

// LogrusLogger emits audit events as structured log lines. It is the
// default sink when no database is configured.
type LogrusLogger struct {
	log *logrus.Logger
}

// NewLogrusLogger creates a logrus-backed audit logger
func NewLogrusLogger(log *logrus.Logger) *LogrusLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogrusLogger{log: log}
}

// Log logs an audit event
func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	fields := logrus.Fields{
		"audit_id":   event.ID,
		"event_type": event.EventType,
		"status":     event.Status,
	}
	if event.Username != "" {
		fields["username"] = event.Username
	}
	if event.IPAddress != "" {
		fields["ip_address"] = event.IPAddress
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.Method != "" {
		fields["method"] = event.Method
		fields["path"] = event.Path
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}

	entry := l.log.WithFields(fields)
	switch event.Status {
	case EventStatusFailure, EventStatusDenied:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}
	return nil
}

// LogAuthentication logs an authentication lifecycle event
func (l *LogrusLogger) LogAuthentication(ctx context.Context, r *http.Request, eventType EventType, username string, status EventStatus, message string) error {
	event := NewEvent(ctx, r, eventType, status)
	event.Username = username
	event.Message = message
	return l.Log(ctx, event)
}

// Close flushes the logger (no-op for logrus)
func (l *LogrusLogger) Close() error {
	return nil
}
