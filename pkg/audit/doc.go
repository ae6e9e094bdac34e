// Package audit records security-relevant authentication events.
//
// # Overview
//
// Every login, logout, auto-login, secret rotation, and invalid-cookie
// observation produces an Event with a uuid, timestamp, actor, and request
// context. Events flow through the Logger interface to one or more sinks:
//
//	logrus   - structured log lines (NewLogrusLogger)
//	postgres - queryable auth_audit_logs table (NewDBLogger)
//	fan-out  - NewMultiLogger(log, db)
//
// # Usage
//
//	auditLog := audit.NewMultiLogger(audit.NewLogrusLogger(log), dbLogger)
//	auditLog.LogAuthentication(ctx, r, audit.EventTypeInvalidCookie,
//		"", audit.EventStatusDenied, "tampered remember-me cookie")
//
// Handlers reach the logger through the request context via FromContext;
// when none is installed a no-op logger is returned, so audit calls are
// always safe.
package audit
