package auth_test

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"screener.dev/internal/auth"
	"screener.dev/internal/auth/authtest"
)

func newSessionFixture(t *testing.T, opts ...auth.SessionsOption) (*auth.Sessions, *authtest.MemStore, auth.User) {
	t.Helper()
	store := authtest.NewMemStore()
	codec, err := auth.NewCodec(bcrypt.MinCost, "session-pepper")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	user, err := store.CreateUser(context.Background(), auth.User{
		Email:        "user@example.com",
		PasswordHash: "irrelevant",
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return auth.NewSessions(store, codec, opts...), store, user
}

func TestSessionCreateAndResolve(t *testing.T) {
	sessions, store, user := newSessionFixture(t)
	ctx := context.Background()

	sess, raw, err := sessions.Create(ctx, user.ID, "203.0.113.7", "agent/1.0")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if raw == "" || sess.TokenHash == raw {
		t.Fatal("raw token must be returned and must differ from the stored hash")
	}
	if stored := store.Sessions[sess.ID]; stored.TokenHash != sess.TokenHash {
		t.Fatal("session not persisted")
	}

	ac, err := sessions.Resolve(ctx, raw)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ac == nil || ac.User.ID != user.ID || ac.SessionID != sess.ID {
		t.Fatalf("unexpected context: %+v", ac)
	}

	if ac, err := sessions.Resolve(ctx, "deadbeef"); err != nil || ac != nil {
		t.Fatalf("unknown token must resolve to nil, got ctx=%v err=%v", ac, err)
	}
	if ac, err := sessions.Resolve(ctx, ""); err != nil || ac != nil {
		t.Fatalf("empty token must resolve to nil, got ctx=%v err=%v", ac, err)
	}
}

func TestSessionExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	sessions, _, user := newSessionFixture(t,
		auth.WithSessionTTL(time.Hour), auth.WithSessionClock(clock))
	ctx := context.Background()

	_, raw, err := sessions.Create(ctx, user.ID, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ac, err := sessions.Resolve(ctx, raw); err != nil || ac == nil {
		t.Fatalf("session should be live, got ctx=%v err=%v", ac, err)
	}

	now = now.Add(time.Hour + time.Second)
	if ac, err := sessions.Resolve(ctx, raw); err != nil || ac != nil {
		t.Fatalf("expired session must not resolve, got ctx=%v err=%v", ac, err)
	}
}

func TestSessionRotate(t *testing.T) {
	sessions, _, user := newSessionFixture(t)
	ctx := context.Background()

	_, raw, err := sessions.Create(ctx, user.ID, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ac, err := sessions.Resolve(ctx, raw)
	if err != nil || ac == nil {
		t.Fatalf("Resolve: ctx=%v err=%v", ac, err)
	}

	rotated, newRaw, err := sessions.Rotate(ctx, ac, "203.0.113.8", "agent/2.0")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if newRaw == raw {
		t.Fatal("rotation must issue a new token")
	}
	if ac2, err := sessions.Resolve(ctx, raw); err != nil || ac2 != nil {
		t.Fatalf("old token must be dead after rotation, got ctx=%v err=%v", ac2, err)
	}
	ac2, err := sessions.Resolve(ctx, newRaw)
	if err != nil || ac2 == nil {
		t.Fatalf("rotated token must resolve, got ctx=%v err=%v", ac2, err)
	}
	if ac2.SessionID != rotated.ID {
		t.Fatalf("resolved session %s, want %s", ac2.SessionID, rotated.ID)
	}
}

func TestSessionRevocation(t *testing.T) {
	sessions, _, user := newSessionFixture(t)
	ctx := context.Background()

	_, raw1, err := sessions.Create(ctx, user.ID, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, raw2, err := sessions.Create(ctx, user.ID, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := sessions.RevokeByToken(ctx, raw1); err != nil {
		t.Fatalf("RevokeByToken: %v", err)
	}
	if ac, err := sessions.Resolve(ctx, raw1); err != nil || ac != nil {
		t.Fatalf("revoked token must not resolve, got ctx=%v err=%v", ac, err)
	}
	if ac, err := sessions.Resolve(ctx, raw2); err != nil || ac == nil {
		t.Fatalf("sibling session must survive, got ctx=%v err=%v", ac, err)
	}

	// Unknown and empty tokens revoke nothing and return no error.
	if err := sessions.RevokeByToken(ctx, "doesnotexist"); err != nil {
		t.Fatalf("RevokeByToken unknown: %v", err)
	}
	if err := sessions.RevokeByToken(ctx, ""); err != nil {
		t.Fatalf("RevokeByToken empty: %v", err)
	}

	if err := sessions.RevokeAllForUser(ctx, user.ID); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	if ac, err := sessions.Resolve(ctx, raw2); err != nil || ac != nil {
		t.Fatalf("RevokeAllForUser must kill every session, got ctx=%v err=%v", ac, err)
	}
}
