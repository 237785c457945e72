package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost matches the deployment default of 12 rounds.
	DefaultBcryptCost = 12

	sessionTokenBytes = 32
	csrfTokenBytes    = 32
)

// Codec owns credential primitives: password hashing, session token
// generation and keyed hashing, and CSRF token generation. The pepper is a
// server-only secret mixed into session-token hashes so a leaked sessions
// table cannot be replayed.
type Codec struct {
	cost   int
	pepper []byte
}

// NewCodec constructs a Codec. A cost of zero falls back to DefaultBcryptCost.
func NewCodec(cost int, pepper string) (*Codec, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d out of range", cost)
	}
	if strings.TrimSpace(pepper) == "" {
		return nil, errors.New("auth: token pepper is required")
	}
	return &Codec{cost: cost, pepper: []byte(pepper)}, nil
}

// NormalizeEmail trims and lower-cases an email. It is the sole lookup and
// uniqueness key for users.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword hashes a plaintext password with bcrypt.
func (c *Codec) HashPassword(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), c.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password against a stored bcrypt hash.
// bcrypt's own comparison is constant-time over the derived key.
func (c *Codec) VerifyPassword(plain, hash string) bool {
	if plain == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// GenerateSessionToken returns 256 bits of cryptographic randomness as a
// fixed-length hex string.
func (c *Codec) GenerateSessionToken() (string, error) {
	return randomHex(sessionTokenBytes)
}

// HashSessionToken derives the persisted form of a raw session token:
// hex(sha256(raw || pepper)). One-way; the raw token is never stored.
func (c *Codec) HashSessionToken(raw string) string {
	h := sha256.New()
	h.Write([]byte(raw))
	h.Write(c.pepper)
	return hex.EncodeToString(h.Sum(nil))
}

// GenerateCSRFToken returns an opaque random token. It is not bound to the
// session; the same-origin check is the binding CSRF control.
func (c *Codec) GenerateCSRFToken() (string, error) {
	return randomHex(csrfTokenBytes)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
