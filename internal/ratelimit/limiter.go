// Package ratelimit throttles login attempts per (client IP, email) pair so a
// remote attacker cannot lock a legitimate user out from another address.
// This is a best-effort defense, not a hard security boundary.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultMaxFailures blocks a key once this many failures land in one window.
	DefaultMaxFailures = 8
	// DefaultWindow is both the counting window and the block duration.
	DefaultWindow = 10 * time.Minute
)

// ErrUnavailable indicates the limiter backend could not be reached.
var ErrUnavailable = errors.New("ratelimit: backend unavailable")

// Decision is the outcome of an Allow check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter tracks login failures per key. Implementations are injected into
// the HTTP layer; there is no package-level state.
type Limiter interface {
	// Allow reports whether a login attempt for the key may proceed.
	Allow(ctx context.Context, key string) (Decision, error)
	// RecordFailure counts one failed attempt; reaching the threshold blocks
	// the key for a full window.
	RecordFailure(ctx context.Context, key string) error
	// RecordSuccess clears all throttle state for the key.
	RecordSuccess(ctx context.Context, key string) error
}

// Key builds the canonical throttle key for a login attempt.
func Key(clientIP, email string) string {
	return clientIP + ":" + email
}
