package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication lifecycle events
	EventTypeLogin          EventType = "auth.login"
	EventTypeLoginFailed    EventType = "auth.login_failed"
	EventTypeLogout         EventType = "auth.logout"
	EventTypeAutoLogin      EventType = "auth.auto_login"
	EventTypeAutoLoginFail  EventType = "auth.auto_login_failed"
	EventTypeInvalidCookie  EventType = "auth.invalid_cookie"
	EventTypeSessionResumed EventType = "auth.session_resumed"
	EventTypeSecretRotated  EventType = "auth.secret_rotated"
	EventTypeSessionBurned  EventType = "auth.session_burned"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	// Core fields
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	Username string `json:"username,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime  *time.Time
	EndTime    *time.Time
	Username   string
	EventTypes []EventType
	Status     *EventStatus
	IPAddress  string

	// Pagination
	Limit  int
	Offset int
}
