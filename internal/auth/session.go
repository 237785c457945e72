package auth

import (
	"context"
	"fmt"
	"time"

	"screener.dev/internal/ids"
)

// DefaultSessionTTL applies when no TTL is configured.
const DefaultSessionTTL = 24 * time.Hour

// Sessions manages the session lifecycle: issuance, token resolution,
// rotation and revocation. Tokens are stored only as keyed hashes; every
// request re-resolves its context from the store so a revoked session is
// unusable immediately.
type Sessions struct {
	store Store
	codec *Codec
	ttl   time.Duration
	now   func() time.Time
}

// SessionsOption configures a Sessions manager.
type SessionsOption func(*Sessions)

// WithSessionTTL overrides the session lifetime.
func WithSessionTTL(ttl time.Duration) SessionsOption {
	return func(s *Sessions) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSessionClock overrides the time source, for tests.
func WithSessionClock(fn func() time.Time) SessionsOption {
	return func(s *Sessions) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSessions constructs a session manager.
func NewSessions(store Store, codec *Codec, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		store: store,
		codec: codec,
		ttl:   DefaultSessionTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create issues a fresh session for the user and returns the record together
// with the raw token. The raw token is not retrievable again.
func (s *Sessions) Create(ctx context.Context, userID, clientIP, userAgent string) (Session, string, error) {
	raw, err := s.codec.GenerateSessionToken()
	if err != nil {
		return Session{}, "", fmt.Errorf("generate session token: %w", err)
	}
	now := s.now().UTC()
	sess := Session{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: s.codec.HashSessionToken(raw),
		ClientIP:  clientIP,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.InsertSession(ctx, sess); err != nil {
		return Session{}, "", fmt.Errorf("insert session: %w", err)
	}
	return sess, raw, nil
}

// Resolve maps a raw token to its authorization context. It returns (nil, nil)
// for unknown, expired or revoked tokens and for deactivated users alike;
// callers must not distinguish the causes.
func (s *Sessions) Resolve(ctx context.Context, rawToken string) (*Context, error) {
	if rawToken == "" {
		return nil, nil
	}
	return s.store.ResolveSession(ctx, s.codec.HashSessionToken(rawToken), s.now().UTC())
}

// Rotate issues a new session for the context's user and revokes the session
// the request arrived with. Used for sliding expiration on /auth/me.
func (s *Sessions) Rotate(ctx context.Context, current *Context, clientIP, userAgent string) (Session, string, error) {
	sess, raw, err := s.Create(ctx, current.User.ID, clientIP, userAgent)
	if err != nil {
		return Session{}, "", err
	}
	if err := s.store.RevokeSessionByID(ctx, current.SessionID, s.now().UTC()); err != nil {
		return Session{}, "", fmt.Errorf("revoke rotated session: %w", err)
	}
	return sess, raw, nil
}

// RevokeByToken revokes the session matching the raw token. A token that
// matches nothing is a no-op, not an error.
func (s *Sessions) RevokeByToken(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	return s.store.RevokeSessionByTokenHash(ctx, s.codec.HashSessionToken(rawToken), s.now().UTC())
}

// RevokeAllForUser revokes every open session for the user. Called on
// deactivation and forced password reset.
func (s *Sessions) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.store.RevokeSessionsForUser(ctx, userID, s.now().UTC())
}

// TTL returns the configured session lifetime, for cookie Max-Age.
func (s *Sessions) TTL() time.Duration { return s.ttl }
