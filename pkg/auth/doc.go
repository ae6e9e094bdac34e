// Package auth implements persistent ("remember me") cookie authentication.
//
// # Overview
//
// Two authenticators share one lifecycle (OnLogin, AutoLogin, OnLogout,
// Resume) over an HTTP request/response pair:
//
// CookieAuthenticator keeps all state client-side in a single HMAC token
// cookie. The token binds the credential to the user's current password
// hash under a server-held salt, so a password change invalidates every
// outstanding cookie with no revocation list.
//
// DatabaseAuthenticator decorates it with a server-side session record and
// a second, rotating secret cookie. The record enables server-initiated
// revocation; the rotating secret is compared against a bcrypt hash on
// every auto-login and rotated on every resume, so a stolen cookie pair
// replays for at most one resume interval, and a single failed check
// burns the whole session (one-way latch).
//
// # Usage
//
//	authn, err := auth.NewDatabaseAuthenticator(users, store, salt, auth.DefaultOptions())
//	if err != nil {
//		log.Fatal(err) // unsupported algorithm is a startup fault
//	}
//
//	// after the login form checks out:
//	expiresAt, err := authn.OnLogin(ctx, w, "alice", user.PasswordHash())
//
//	// on subsequent requests:
//	user, err := authn.AutoLogin(ctx, r)
//	switch {
//	case errors.Is(err, auth.ErrInvalidCookie):
//		// tampered cookie: log as a security event, answer 403
//	case err != nil:
//		// store unavailable: propagate, do not treat as anonymous
//	case user == nil:
//		// anonymous request
//	}
//
// # States
//
// Anonymous → Authenticated → (Resumed)* → LoggedOut. There is no
// persisted "expired" state on the client; expiry is detected on the next
// validation attempt.
//
// # Collaborators
//
// UserLookup resolves users by a configured field; TokenStore persists
// session records (see pkg/storage for sqlite, postgres, redis and
// in-memory implementations). Both treat "not found" as (nil, nil) and
// reserve errors for availability failures, which always propagate.
package auth
