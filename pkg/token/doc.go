// Package token implements the wire codec for remember-me authentication
// cookies and the rotating session secrets that back them.
//
// # Token Format
//
// A token is a delimited triple:
//
//	base64url(credential) ":" unixExpiry ":" hex(hmac)
//
// where the mac covers credential, the user's stored password hash and the
// expiry, keyed with a server-held salt:
//
//	codec, err := token.NewCodec("sha256", salt)
//	value := codec.Encode("alice", user.PasswordHash(), time.Now().Add(72*time.Hour))
//
// Validation recomputes the mac from the *current* password hash with a
// constant-time comparison:
//
//	if codec.Validate(value, "alice", user.PasswordHash()) {
//		// cookie is genuine
//	}
//
// Because the password hash is part of the keyed input, a password change
// silently invalidates every outstanding token.
//
// # Random Passwords
//
// The database-backed authenticator pairs the HMAC cookie with a rotating
// random password: generated with crypto/rand, stored bcrypt-hashed, and
// rotated on every session resume.
//
//	secret, _ := token.RandomPassword(token.DefaultRandomPasswordLength)
//	hash, _ := token.HashRandomPassword(secret, token.DefaultBcryptCost)
//	ok := token.VerifyRandomPassword(hash, secret)
//
// # Errors
//
// ErrMalformedToken marks a present-but-unparseable token (a security
// event, distinct from an absent cookie). ErrUnsupportedAlgorithm is
// returned by NewCodec, never deferred to first use.
package token
