package auth

import (
	"net/http"
	"time"

	"github.com/tmercier/keepsake/pkg/token"
)

const (
	// DefaultCookieName is the name of the HMAC token cookie.
	DefaultCookieName = "auth_login"
	// DefaultPasswordCookieName is the name of the rotating secret cookie
	// used by the database-backed authenticator.
	DefaultPasswordCookieName = "random_password"
	// DefaultField is the user attribute queried during auto-login.
	DefaultField = "username"
	// DefaultLifetime is the sliding session window.
	DefaultLifetime = 3 * 24 * time.Hour
)

// Options configures the authenticators. The zero value is not usable
// directly; start from DefaultOptions and override what you need.
type Options struct {
	// Name is the HMAC token cookie name.
	Name string
	// Field is the user attribute queried via UserLookup during auto-login.
	Field string
	// Lifetime is how long an issued or resumed session stays valid.
	Lifetime time.Duration
	// Algorithm selects the HMAC hash. Unsupported values fail at
	// construction, not at first use.
	Algorithm string

	// Cookie transport flags, shared by both cookies.
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite

	// PasswordCookieName is the rotating secret cookie name
	// (database-backed authenticator only).
	PasswordCookieName string
	// BcryptCost is the work factor for hashing rotating secrets.
	BcryptCost int
	// RandomPasswordLength is the entropy, in bytes, of rotating secrets.
	RandomPasswordLength int
}

// DefaultOptions returns the documented defaults: httpOnly cookie named
// "auth_login" scoped to "/", username lookup, a three-day lifetime and
// SHA-256 HMAC.
func DefaultOptions() Options {
	return Options{
		Name:                 DefaultCookieName,
		Field:                DefaultField,
		Lifetime:             DefaultLifetime,
		Algorithm:            token.DefaultAlgorithm,
		Path:                 "/",
		HTTPOnly:             true,
		SameSite:             http.SameSiteLaxMode,
		PasswordCookieName:   DefaultPasswordCookieName,
		BcryptCost:           token.DefaultBcryptCost,
		RandomPasswordLength: token.DefaultRandomPasswordLength,
	}
}

// withDefaults fills unset fields. Boolean flags are left as given; use
// DefaultOptions when you want the documented defaults for those too.
func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = DefaultCookieName
	}
	if o.Field == "" {
		o.Field = DefaultField
	}
	if o.Lifetime <= 0 {
		o.Lifetime = DefaultLifetime
	}
	if o.Algorithm == "" {
		o.Algorithm = token.DefaultAlgorithm
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.PasswordCookieName == "" {
		o.PasswordCookieName = DefaultPasswordCookieName
	}
	if o.BcryptCost <= 0 {
		o.BcryptCost = token.DefaultBcryptCost
	}
	if o.RandomPasswordLength <= 0 {
		o.RandomPasswordLength = token.DefaultRandomPasswordLength
	}
	return o
}

// cookie builds a session cookie carrying value until expiresAt.
func (o Options) cookie(name, value string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt) / time.Second),
		Path:     o.Path,
		Domain:   o.Domain,
		Secure:   o.Secure,
		HttpOnly: o.HTTPOnly,
		SameSite: o.SameSite,
	}
}

// expiredCookie builds a deletion instruction for the named cookie: empty
// value, expiry in the past.
func (o Options) expiredCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		MaxAge:   -1,
		Path:     o.Path,
		Domain:   o.Domain,
		Secure:   o.Secure,
		HttpOnly: o.HTTPOnly,
		SameSite: o.SameSite,
	}
}
