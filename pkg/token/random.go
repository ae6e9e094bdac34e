package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultRandomPasswordLength is the number of random bytes drawn for a
	// rotating session secret.
	DefaultRandomPasswordLength = 24

	// DefaultBcryptCost is the work factor applied when hashing a random
	// password for server-side storage.
	DefaultBcryptCost = 10
)

// RandomPassword generates a high-entropy session secret of n random bytes,
// base64url encoded. It is stored hashed on the server and sent in plaintext
// in a dedicated cookie; comparing the two detects cookie replay
// independently of the HMAC token.
func RandomPassword(n int) (string, error) {
	if n <= 0 {
		n = DefaultRandomPasswordLength
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashRandomPassword hashes a random password with bcrypt at the given cost.
// Costs outside bcrypt's valid range fall back to DefaultBcryptCost.
func HashRandomPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash random password: %w", err)
	}
	return string(hashed), nil
}

// VerifyRandomPassword reports whether the plaintext matches the stored
// bcrypt hash.
func VerifyRandomPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}
