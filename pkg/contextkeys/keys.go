// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/tmercier/keepsake/pkg/contextkeys"
//   ctx = contextkeys.WithUser(ctx, user)
//   user, ok := contextkeys.GetUser(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// UserKey contains the authenticated auth.User
	// Set by: middleware.RememberMe after cookie validation
	// Required by: Session endpoints, audit trail
	// Type: auth.User
	UserKey Key = "current_user"

	// SessionExpiryKey contains the session expiry timestamp
	// Set by: middleware.RememberMe when a session is resumed
	// Type: time.Time
	SessionExpiryKey Key = "session_expiry"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware, observability layer
	// Used by: Logger, audit trail, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger interface
	// Set by: api.Server at startup
	// Used by: Handlers and middleware that record audit events
	// Type: audit.Logger
	AuditLoggerKey Key = "audit_logger"

	// RequestStartTimeKey contains request start timestamp
	// Set by: Request logging middleware
	// Used by: Duration calculation for audit logs
	// Type: time.Time
	RequestStartTimeKey Key = "request_start_time"
)

// Helper functions for type-safe context operations

// WithUser adds the authenticated user to the context
func WithUser(ctx context.Context, user interface{}) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// WithSessionExpiry adds the session expiry to the context
func WithSessionExpiry(ctx context.Context, expiry interface{}) context.Context {
	return context.WithValue(ctx, SessionExpiryKey, expiry)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditLogger adds audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// WithRequestStartTime adds request start time to the context
func WithRequestStartTime(ctx context.Context, startTime interface{}) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, startTime)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
