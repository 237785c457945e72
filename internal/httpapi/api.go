// Package httpapi exposes the authentication, session and RBAC administration
// endpoints and enforces the request-level guards in front of them.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"screener.dev/internal/audit"
	"screener.dev/internal/auth"
	"screener.dev/internal/config"
	"screener.dev/internal/obs"
	"screener.dev/internal/ratelimit"
)

// ReadyProbe checks downstream readiness, typically a database ping.
type ReadyProbe struct {
	Check func(ctx context.Context) error
}

// API is the HTTP layer. Handlers resolve identity through the session
// manager, enforce policy via the guard helpers, and delegate mutations to
// the administration service.
type API struct {
	mux      *http.ServeMux
	cfg      *config.Config
	sessions *auth.Sessions
	svc      *auth.Service
	codec    *auth.Codec
	limiter  ratelimit.Limiter
	recorder *audit.Recorder
	validate *validator.Validate
	log      zerolog.Logger
	ready    ReadyProbe
	version  string
}

// New wires the routes. All dependencies are injected; the API owns no
// background state beyond the per-IP limiter inside its middleware chain.
func New(cfg *config.Config, sessions *auth.Sessions, svc *auth.Service, codec *auth.Codec,
	limiter ratelimit.Limiter, recorder *audit.Recorder, log zerolog.Logger, ready ReadyProbe, version string) *API {

	a := &API{
		mux:      http.NewServeMux(),
		cfg:      cfg,
		sessions: sessions,
		svc:      svc,
		codec:    codec,
		limiter:  limiter,
		recorder: recorder,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With().Str("component", "httpapi").Logger(),
		ready:    ready,
		version:  version,
	}

	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/auth/me", a.handleMe)

	a.mux.HandleFunc("/admin/users", a.handleUsers)
	a.mux.HandleFunc("/admin/users/", a.handleUserResource)
	a.mux.HandleFunc("/admin/roles", a.handleRoles)
	a.mux.HandleFunc("/admin/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/admin/permissions", a.handlePermissions)
	a.mux.HandleFunc("/admin/role-assign", a.handleRoleAssign)
	a.mux.HandleFunc("/admin/role-permissions", a.handleRolePermissions)
	a.mux.HandleFunc("/admin/audit-logs", a.handleAuditLogs)

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withClientIP(h)
	h = SameOrigin(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.cfg.HTTPRateBurst, a.cfg.HTTPRatePerSec)
	h = SecurityHeaders(h)
	h = Logging(a.log, h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// withClientIP stashes the client address for audit enrichment downstream.
func (a *API) withClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithClientIP(r.Context(), clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
