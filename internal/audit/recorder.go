// Package audit persists security-relevant actions. Writes are best-effort:
// a failed audit insert is logged operationally and never fails the request
// that triggered it.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"screener.dev/internal/auth"
	"screener.dev/internal/ids"
)

// Store is the slice of persistence the recorder needs.
type Store interface {
	AppendAudit(ctx context.Context, e auth.AuditEntry) error
}

// Recorder enriches and appends audit entries.
type Recorder struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

// New constructs a Recorder.
func New(store Store, log zerolog.Logger) *Recorder {
	return &Recorder{
		store: store,
		log:   log.With().Str("component", "audit").Logger(),
		now:   time.Now,
	}
}

var _ auth.AuditSink = (*Recorder)(nil)

// Record appends one entry, filling the ID, timestamp and — when a guard has
// attached an authorization context — the acting user. Persistence failures
// are swallowed after logging.
func (r *Recorder) Record(ctx context.Context, e auth.AuditEntry) {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	if e.ActorUserID == "" {
		if ac, ok := auth.FromContext(ctx); ok {
			e.ActorUserID = ac.User.ID
		}
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	if err := r.store.AppendAudit(ctx, e); err != nil {
		r.log.Error().Err(err).
			Str("action", e.Action).
			Str("entity_type", e.EntityType).
			Str("entity_id", e.EntityID).
			Msg("audit write failed")
	}
}

type clientIPKey struct{}

// WithClientIP stores the request's client IP for audit enrichment.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the client IP attached by the HTTP layer.
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(clientIPKey{}).(string)
	return v
}
