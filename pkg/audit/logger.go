package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tmercier/keepsake/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogAuthentication logs an authentication lifecycle event
	LogAuthentication(ctx context.Context, r *http.Request, eventType EventType, username string, status EventStatus, message string) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context. Returns a no-op
// logger when none is set so call sites never have to nil-check.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return &noOpLogger{}
}

// noOpLogger is a logger that does nothing (used when no logger is configured)
type noOpLogger struct{}

func (l *noOpLogger) Log(ctx context.Context, event *Event) error {
	return nil
}

func (l *noOpLogger) LogAuthentication(ctx context.Context, r *http.Request, eventType EventType, username string, status EventStatus, message string) error {
	return nil
}

func (l *noOpLogger) Close() error {
	return nil
}

// ClientIP extracts the client IP from the request. Forwarding headers are
// client-supplied and only meaningful behind a trusted proxy; use PeerIP
// for anything security-sensitive.
func ClientIP(r *http.Request) string {
	// X-Forwarded-For may carry a chain; the first hop is the client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return PeerIP(r)
}

// PeerIP returns the network peer's address without the port. Unlike
// ClientIP it cannot be influenced by request headers.
func PeerIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// NewEvent creates an audit event with common fields populated
func NewEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *Event {
	event := &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}

	if r != nil {
		event.IPAddress = ClientIP(r)
		event.UserAgent = r.UserAgent()
		event.Method = r.Method
		event.Path = r.URL.Path
	}

	return event
}
