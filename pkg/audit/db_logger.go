package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
)

// DBLogger implements audit logging to PostgreSQL
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}

	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure auth_audit_logs table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the auth_audit_logs table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS auth_audit_logs (
		id UUID PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		username VARCHAR(255),
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		message TEXT,
		error_message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_auth_audit_logs_timestamp ON auth_audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_auth_audit_logs_event_type ON auth_audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_auth_audit_logs_username ON auth_audit_logs(username);
	CREATE INDEX IF NOT EXISTS idx_auth_audit_logs_ip_address ON auth_audit_logs(ip_address);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	var err error

	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO auth_audit_logs (
			id, timestamp, event_type, status,
			username, ip_address, user_agent, request_id,
			method, path, message, error_message, metadata
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13
		)
	`

	_, err = l.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.EventType, event.Status,
		event.Username, event.IPAddress, event.UserAgent, event.RequestID,
		event.Method, event.Path, event.Message, event.ErrorMessage, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// LogAuthentication logs an authentication lifecycle event
func (l *DBLogger) LogAuthentication(ctx context.Context, r *http.Request, eventType EventType, username string, status EventStatus, message string) error {
	event := NewEvent(ctx, r, eventType, status)
	event.Username = username
	event.Message = message
	return l.Log(ctx, event)
}

// Search returns audit events matching the filter, newest first.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `
		SELECT id, timestamp, event_type, status,
		       username, ip_address, user_agent, request_id,
		       method, path, message, error_message
		FROM auth_audit_logs
		WHERE 1=1
	`
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartTime != nil {
		query += " AND timestamp >= " + arg(*filter.StartTime)
	}
	if filter.EndTime != nil {
		query += " AND timestamp <= " + arg(*filter.EndTime)
	}
	if filter.Username != "" {
		query += " AND username = " + arg(filter.Username)
	}
	if filter.IPAddress != "" {
		query += " AND ip_address = " + arg(filter.IPAddress)
	}
	if filter.Status != nil {
		query += " AND status = " + arg(string(*filter.Status))
	}
	if len(filter.EventTypes) == 1 {
		query += " AND event_type = " + arg(string(filter.EventTypes[0]))
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var username, ipAddress, userAgent, requestID sql.NullString
		var method, path, message, errorMessage sql.NullString
		err := rows.Scan(&event.ID, &event.Timestamp, &event.EventType, &event.Status,
			&username, &ipAddress, &userAgent, &requestID,
			&method, &path, &message, &errorMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		event.Username = username.String
		event.IPAddress = ipAddress.String
		event.UserAgent = userAgent.String
		event.RequestID = requestID.String
		event.Method = method.String
		event.Path = path.String
		event.Message = message.String
		event.ErrorMessage = errorMessage.String
		events = append(events, &event)
	}

	return events, rows.Err()
}

// Close closes the logger (the caller owns the database handle)
func (l *DBLogger) Close() error {
	return nil
}
