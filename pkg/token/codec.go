package token

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// Separator delimits the token fields. It never appears in the
	// base64url or decimal-timestamp alphabets, so splitting is unambiguous.
	Separator = ":"

	// DefaultAlgorithm is used when no algorithm is configured.
	DefaultAlgorithm = "sha256"
)

var (
	// ErrMalformedToken indicates a token that is present but not parseable:
	// wrong field count, invalid base64 credential, or a non-numeric expiry.
	// Callers should treat it as a tampered cookie, not as "no session".
	ErrMalformedToken = errors.New("malformed authentication token")

	// ErrUnsupportedAlgorithm indicates a hash algorithm outside the
	// supported set. Raised at construction time, never at first use.
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")
)

// algorithms maps supported algorithm names to their hash constructors.
var algorithms = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// SupportedAlgorithms returns the sorted list of valid algorithm names.
func SupportedAlgorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Codec encodes and validates remember-me tokens.
//
// A token binds a credential to the user's current password hash and an
// expiry timestamp under an HMAC keyed with a server-held salt:
//
//	base64url(credential) ":" unixExpiry ":" hex(hmac)
//
// Forging a token requires both the salt and the user's current password
// hash, so changing the password invalidates every outstanding token
// without a revocation list.
type Codec struct {
	algorithm string
	newHash   func() hash.Hash
	salt      []byte
}

// NewCodec creates a codec for the given algorithm and salt. An empty
// algorithm selects DefaultAlgorithm. Unknown algorithms fail immediately
// with ErrUnsupportedAlgorithm.
func NewCodec(algorithm string, salt []byte) (*Codec, error) {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	algorithm = strings.ToLower(algorithm)
	newHash, ok := algorithms[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedAlgorithm, algorithm, strings.Join(SupportedAlgorithms(), ", "))
	}
	return &Codec{
		algorithm: algorithm,
		newHash:   newHash,
		salt:      salt,
	}, nil
}

// Algorithm returns the configured algorithm name.
func (c *Codec) Algorithm() string {
	return c.algorithm
}

// Encode builds a token for the credential from the user's stored password
// hash and the expiry computed by the caller. Identical inputs produce an
// identical token.
func (c *Codec) Encode(credential, passwordHash string, expiresAt time.Time) string {
	expiry := strconv.FormatInt(expiresAt.Unix(), 10)
	mac := c.mac(credential, passwordHash, expiry)
	return base64.RawURLEncoding.EncodeToString([]byte(credential)) + Separator + expiry + Separator + mac
}

// Decode splits a token into its parts. The returned mac is not verified;
// use Validate for that.
func (c *Codec) Decode(token string) (credential string, expiresAt time.Time, mac string, err error) {
	parts := strings.Split(token, Separator)
	if len(parts) != 3 {
		return "", time.Time{}, "", fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedToken, len(parts))
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("%w: invalid credential encoding", ErrMalformedToken)
	}
	unix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("%w: invalid expiry", ErrMalformedToken)
	}
	return string(raw), time.Unix(unix, 0), parts[2], nil
}

// Validate recomputes the expected mac from the current password hash and
// compares it in constant time. The decoded credential must also match the
// expected credential exactly (case sensitive). Both checks must pass.
//
// The embedded expiry is authenticated data: it participates in the mac but
// is not compared against the clock here. Expiry enforcement belongs to the
// cookie's own lifetime and, in the database-backed variant, the persisted
// record.
func (c *Codec) Validate(token, credential, passwordHash string) bool {
	decoded, expiresAt, mac, err := c.Decode(token)
	if err != nil {
		return false
	}
	expiry := strconv.FormatInt(expiresAt.Unix(), 10)
	expected := c.mac(credential, passwordHash, expiry)
	if !hmac.Equal([]byte(expected), []byte(mac)) {
		return false
	}
	return decoded == credential
}

func (c *Codec) mac(credential, passwordHash, expiry string) string {
	h := hmac.New(c.newHash, c.salt)
	h.Write([]byte(credential))
	h.Write([]byte(passwordHash))
	h.Write([]byte(expiry))
	return hex.EncodeToString(h.Sum(nil))
}
