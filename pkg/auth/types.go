package auth

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrInvalidCookie indicates an authentication cookie that is present
	// but tampered or unparseable. Callers should log it as a security
	// event; the net authentication result is still "not authenticated".
	ErrInvalidCookie = errors.New("invalid authentication cookie")

	// ErrUnknownField indicates the resolved user does not expose the
	// configured credential field. This is a configuration error, not a
	// runtime authentication failure, and must not be masked as anonymous.
	ErrUnknownField = errors.New("user does not expose configured credential field")
)

// User is the capability surface the authenticators need from a resolved
// user entity. Field returns the value of a named attribute (for example
// "username" or "email") and reports whether the attribute exists.
type User interface {
	Field(name string) (string, bool)
	PasswordHash() string
}

// UserLookup resolves a user by a named field. A nil user with a nil error
// means no match; a non-nil error means the lookup itself failed and must
// propagate; an unavailable store is not the same as a missing user.
type UserLookup interface {
	GetUser(ctx context.Context, field, value string) (User, error)
}

// Record is a server-persisted remember-me session backing a credential.
// At most one active (non-expired) record exists per credential; a new
// login replaces it. Records are exclusively owned and mutated by the
// authenticator.
type Record struct {
	ID                 string    `json:"id"`
	Credential         string    `json:"credential"`
	RandomPasswordHash string    `json:"-"` // bcrypt hash, never exposed
	ExpirationDate     time.Time `json:"expiration_date"`
	IsExpired          bool      `json:"is_expired"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Active reports whether the record can still back a session at the given
// instant.
func (r *Record) Active(now time.Time) bool {
	return r != nil && !r.IsExpired && !r.ExpirationDate.Before(now)
}

// TokenStore persists remember-me records, enabling server-initiated
// revocation. GetToken returns (nil, nil) when no record exists for the
// credential. SaveToken creates or replaces the record for its credential.
// Implementations needing strict correctness under concurrent resumes for
// the same credential should make UpdateToken an atomic read-modify-write;
// the authenticators tolerate last-write-wins.
type TokenStore interface {
	GetToken(ctx context.Context, credential string) (*Record, error)
	SaveToken(ctx context.Context, record *Record) error
	UpdateToken(ctx context.Context, record *Record) error
	DeleteToken(ctx context.Context, id string) error
}

// Authenticator is the persistent-login state machine. OnLogin and Resume
// return the expiry they stamped on the response so decorators can reuse it
// instead of sharing mutable state; Resume returns the zero time when no
// session cookie was present.
type Authenticator interface {
	OnLogin(ctx context.Context, w http.ResponseWriter, credential, passwordHash string) (time.Time, error)
	AutoLogin(ctx context.Context, r *http.Request) (User, error)
	OnLogout(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	Resume(ctx context.Context, w http.ResponseWriter, r *http.Request) (time.Time, error)
}
