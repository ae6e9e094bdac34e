package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tmercier/keepsake/pkg/token"
)

// DatabaseAuthenticator decorates a CookieAuthenticator with a server-side
// record and a second, rotating secret cookie. The record enables
// server-initiated revocation; the rotating secret detects replay of a
// stolen cookie independently of the HMAC token. Once database backing is
// enabled, a valid HMAC cookie alone never authenticates.
type DatabaseAuthenticator struct {
	base  *CookieAuthenticator
	store TokenStore
}

// NewDatabaseAuthenticator builds the decorated authenticator.
func NewDatabaseAuthenticator(users UserLookup, store TokenStore, salt []byte, opts Options) (*DatabaseAuthenticator, error) {
	base, err := NewCookieAuthenticator(users, salt, opts)
	if err != nil {
		return nil, err
	}
	return &DatabaseAuthenticator{base: base, store: store}, nil
}

// Options returns the normalized options in effect.
func (d *DatabaseAuthenticator) Options() Options {
	return d.base.Options()
}

// OnLogin issues the HMAC cookie via the base authenticator, then persists
// a fresh session record and sets the rotating secret cookie with matching
// expiry and flags. An existing record for the credential is replaced.
func (d *DatabaseAuthenticator) OnLogin(ctx context.Context, w http.ResponseWriter, credential, passwordHash string) (time.Time, error) {
	expiresAt, err := d.base.OnLogin(ctx, w, credential, passwordHash)
	if err != nil {
		return time.Time{}, err
	}

	secret, hash, err := d.rotateSecret()
	if err != nil {
		return time.Time{}, err
	}

	now := time.Now()
	record := &Record{
		ID:                 uuid.NewString(),
		Credential:         credential,
		RandomPasswordHash: hash,
		ExpirationDate:     expiresAt,
		IsExpired:          false,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := d.store.SaveToken(ctx, record); err != nil {
		return time.Time{}, fmt.Errorf("save session record: %w", err)
	}

	opts := d.base.opts
	http.SetCookie(w, opts.cookie(opts.PasswordCookieName, secret, expiresAt))
	return expiresAt, nil
}

// AutoLogin authenticates a request. The HMAC token must already check out
// via the base authenticator; on top of that the session record must exist,
// must not be marked expired, the rotating secret cookie must verify
// against the stored hash, and the record's expiration date must not have
// passed. A failed secret or expiry check soft-expires the record: a
// one-way latch that burns the session even though the HMAC was valid,
// containing replay of a captured secret cookie.
func (d *DatabaseAuthenticator) AutoLogin(ctx context.Context, r *http.Request) (User, error) {
	user, err := d.base.AutoLogin(ctx, r)
	if err != nil || user == nil {
		return nil, err
	}

	credential, ok := user.Field(d.base.opts.Field)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, d.base.opts.Field)
	}

	record, err := d.store.GetToken(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("load session record: %w", err)
	}
	if record == nil || record.IsExpired {
		return nil, nil
	}

	cookie, err := r.Cookie(d.base.opts.PasswordCookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	burn := false
	if !token.VerifyRandomPassword(record.RandomPasswordHash, cookie.Value) {
		burn = true
	}
	if record.ExpirationDate.Before(time.Now()) {
		burn = true
	}
	if burn {
		record.IsExpired = true
		record.UpdatedAt = time.Now()
		if err := d.store.UpdateToken(ctx, record); err != nil {
			return nil, fmt.Errorf("expire session record: %w", err)
		}
		return nil, nil
	}
	return user, nil
}

// OnLogout clears both cookies and soft-expires the session record,
// keeping it around as an audit trail rather than hard-deleting it. The
// credential is decoded from the still-present token cookie before the
// base clears it.
func (d *DatabaseAuthenticator) OnLogout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var credential string
	if cookie, err := r.Cookie(d.base.opts.Name); err == nil && cookie.Value != "" {
		if cred, _, derr := d.base.decode(cookie.Value); derr == nil {
			credential = cred
		}
	}

	if err := d.base.OnLogout(ctx, w, r); err != nil {
		return err
	}
	opts := d.base.opts
	http.SetCookie(w, opts.expiredCookie(opts.PasswordCookieName))

	if credential == "" {
		return nil
	}
	record, err := d.store.GetToken(ctx, credential)
	if err != nil {
		return fmt.Errorf("load session record: %w", err)
	}
	if record == nil || record.IsExpired {
		return nil
	}
	record.IsExpired = true
	record.RandomPasswordHash = ""
	record.UpdatedAt = time.Now()
	if err := d.store.UpdateToken(ctx, record); err != nil {
		return fmt.Errorf("expire session record: %w", err)
	}
	return nil
}

// Resume slides the session window and rotates the secret: the base
// re-issues the HMAC cookie with extended expiry, then a new random
// password replaces both the stored hash and the secret cookie. Rotating on
// every resume limits the replay window of a captured secret cookie to one
// resume interval. A request without a live record gets the extended HMAC
// cookie but no rotation; its next auto-login fails anyway.
func (d *DatabaseAuthenticator) Resume(ctx context.Context, w http.ResponseWriter, r *http.Request) (time.Time, error) {
	cookie, err := r.Cookie(d.base.opts.Name)
	if err != nil || cookie.Value == "" {
		return time.Time{}, nil
	}
	credential, _, err := d.base.decode(cookie.Value)
	if err != nil {
		return time.Time{}, err
	}

	expiresAt, err := d.base.Resume(ctx, w, r)
	if err != nil {
		return time.Time{}, err
	}

	record, err := d.store.GetToken(ctx, credential)
	if err != nil {
		return time.Time{}, fmt.Errorf("load session record: %w", err)
	}
	if !record.Active(time.Now()) {
		return expiresAt, nil
	}

	secret, hash, err := d.rotateSecret()
	if err != nil {
		return time.Time{}, err
	}
	record.RandomPasswordHash = hash
	record.ExpirationDate = expiresAt
	record.UpdatedAt = time.Now()
	if err := d.store.UpdateToken(ctx, record); err != nil {
		return time.Time{}, fmt.Errorf("update session record: %w", err)
	}

	opts := d.base.opts
	http.SetCookie(w, opts.cookie(opts.PasswordCookieName, secret, expiresAt))
	return expiresAt, nil
}

func (d *DatabaseAuthenticator) rotateSecret() (secret, hash string, err error) {
	opts := d.base.opts
	secret, err = token.RandomPassword(opts.RandomPasswordLength)
	if err != nil {
		return "", "", err
	}
	hash, err = token.HashRandomPassword(secret, opts.BcryptCost)
	if err != nil {
		return "", "", err
	}
	return secret, hash, nil
}
