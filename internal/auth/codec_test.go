package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestNewCodecValidation(t *testing.T) {
	if _, err := NewCodec(bcrypt.MinCost, ""); err == nil {
		t.Fatal("expected error for empty pepper")
	}
	if _, err := NewCodec(99, "pepper"); err == nil {
		t.Fatal("expected error for out-of-range cost")
	}
	c, err := NewCodec(0, "pepper")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if c.cost != DefaultBcryptCost {
		t.Fatalf("expected default cost %d, got %d", DefaultBcryptCost, c.cost)
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	c, err := NewCodec(bcrypt.MinCost, "pepper")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	hash, err := c.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !c.VerifyPassword("correct horse battery staple", hash) {
		t.Fatal("correct password rejected")
	}
	if c.VerifyPassword("wrong", hash) {
		t.Fatal("wrong password accepted")
	}
	if c.VerifyPassword("", hash) || c.VerifyPassword("x", "") {
		t.Fatal("empty inputs must never verify")
	}
	if _, err := c.HashPassword(""); err == nil {
		t.Fatal("expected error hashing empty password")
	}
}

func TestSessionTokenHashing(t *testing.T) {
	c, err := NewCodec(bcrypt.MinCost, "pepper-a")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	raw, err := c.GenerateSessionToken()
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}
	if len(raw) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(raw))
	}
	if strings.ToLower(raw) != raw {
		t.Fatalf("token not lower-case hex: %s", raw)
	}

	h1 := c.HashSessionToken(raw)
	h2 := c.HashSessionToken(raw)
	if h1 != h2 {
		t.Fatal("token hash must be deterministic")
	}
	if h1 == raw {
		t.Fatal("stored form must differ from the raw token")
	}

	other, err := NewCodec(bcrypt.MinCost, "pepper-b")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if other.HashSessionToken(raw) == h1 {
		t.Fatal("different peppers must produce different hashes")
	}
}

func TestCSRFTokensAreUnique(t *testing.T) {
	c, err := NewCodec(bcrypt.MinCost, "pepper")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	a, err := c.GenerateCSRFToken()
	if err != nil {
		t.Fatalf("GenerateCSRFToken: %v", err)
	}
	b, err := c.GenerateCSRFToken()
	if err != nil {
		t.Fatalf("GenerateCSRFToken: %v", err)
	}
	if a == b {
		t.Fatal("two CSRF tokens must not collide")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Ada@Example.COM "); got != "ada@example.com" {
		t.Fatalf("unexpected normalization: %s", got)
	}
}
