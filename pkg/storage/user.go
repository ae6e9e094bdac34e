package storage

import "time"

// User is the stored account entity. It exposes the capability surface the
// authenticators need (Field and PasswordHash) without leaking persistence
// concerns into pkg/auth.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"` // bcrypt hash of the login password
	CreatedAt      time.Time `json:"created_at"`
}

// Field returns the value of a named attribute and whether the attribute
// exists. The attribute set is fixed; asking for anything else signals a
// configuration error upstream.
func (u *User) Field(name string) (string, bool) {
	switch name {
	case "username":
		return u.Username, true
	case "email":
		return u.Email, true
	}
	return "", false
}

// PasswordHash returns the stored login password hash.
func (u *User) PasswordHash() string {
	return u.HashedPassword
}

// userFields whitelists the columns GetUser may query, keeping the
// configurable field name out of SQL string interpolation.
var userFields = map[string]string{
	"username": "username",
	"email":    "email",
}
