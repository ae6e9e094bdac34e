package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tmercier/keepsake/pkg/token"
)

// CookieAuthenticator implements persistent login with a single HMAC token
// cookie. The token binds the credential to the user's current password
// hash, so a password change invalidates every outstanding cookie without
// any server-side bookkeeping. For server-initiated revocation, wrap it in
// a DatabaseAuthenticator.
type CookieAuthenticator struct {
	codec *token.Codec
	users UserLookup
	opts  Options
}

// NewCookieAuthenticator builds an authenticator from the user lookup, the
// server-held HMAC salt and options. An unsupported hash algorithm fails
// here, never at first use.
func NewCookieAuthenticator(users UserLookup, salt []byte, opts Options) (*CookieAuthenticator, error) {
	opts = opts.withDefaults()
	codec, err := token.NewCodec(opts.Algorithm, salt)
	if err != nil {
		return nil, err
	}
	return &CookieAuthenticator{
		codec: codec,
		users: users,
		opts:  opts,
	}, nil
}

// Options returns the normalized options in effect.
func (a *CookieAuthenticator) Options() Options {
	return a.opts
}

// OnLogin stamps a fresh token cookie on the response. The caller has
// already verified the credential/password pair; this only issues the
// persistent cookie. The expiry written to the cookie is returned so
// decorators can align their own state with it.
func (a *CookieAuthenticator) OnLogin(ctx context.Context, w http.ResponseWriter, credential, passwordHash string) (time.Time, error) {
	expiresAt := time.Now().Add(a.opts.Lifetime)
	value := a.codec.Encode(credential, passwordHash, expiresAt)
	http.SetCookie(w, a.opts.cookie(a.opts.Name, value, expiresAt))
	return expiresAt, nil
}

// AutoLogin authenticates a request from its token cookie.
//
// An absent cookie is an anonymous request, not an error. A present but
// unparseable cookie returns ErrInvalidCookie: a tampered cookie is a
// security event the caller should be able to distinguish from "no
// session". A well-formed token that fails verification (unknown user,
// changed password, wrong salt) degrades to anonymous.
func (a *CookieAuthenticator) AutoLogin(ctx context.Context, r *http.Request) (User, error) {
	cookie, err := r.Cookie(a.opts.Name)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	credential, _, _, err := a.codec.Decode(cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCookie, err)
	}

	user, err := a.users.GetUser(ctx, a.opts.Field, credential)
	if err != nil {
		return nil, fmt.Errorf("user lookup by %s failed: %w", a.opts.Field, err)
	}
	if user == nil {
		return nil, nil
	}

	if !a.codec.Validate(cookie.Value, credential, user.PasswordHash()) {
		return nil, nil
	}
	return user, nil
}

// OnLogout overwrites the token cookie with an empty value expiring in the
// past, which HTTP clients treat as "delete this cookie now". Logging out
// a request that carried no cookie is a no-op.
func (a *CookieAuthenticator) OnLogout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if cookie, err := r.Cookie(a.opts.Name); err != nil || cookie.Value == "" {
		return nil
	}
	http.SetCookie(w, a.opts.expiredCookie(a.opts.Name))
	return nil
}

// Resume re-issues the request's token cookie unchanged with a freshly
// extended expiry, sliding the session window. The credential binding is
// not rotated. Returns the zero time when the request carried no cookie.
func (a *CookieAuthenticator) Resume(ctx context.Context, w http.ResponseWriter, r *http.Request) (time.Time, error) {
	cookie, err := r.Cookie(a.opts.Name)
	if err != nil || cookie.Value == "" {
		return time.Time{}, nil
	}
	expiresAt := time.Now().Add(a.opts.Lifetime)
	http.SetCookie(w, a.opts.cookie(a.opts.Name, cookie.Value, expiresAt))
	return expiresAt, nil
}

// decode exposes token parsing to the database-backed decorator, which
// needs the credential during logout and resume.
func (a *CookieAuthenticator) decode(value string) (string, time.Time, error) {
	credential, expiresAt, _, err := a.codec.Decode(value)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", ErrInvalidCookie, err)
	}
	return credential, expiresAt, nil
}
