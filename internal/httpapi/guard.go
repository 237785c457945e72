package httpapi

import (
	"net/http"

	"screener.dev/internal/auth"
)

// requireAuth resolves the session cookie into an authorization context.
// Absent cookie, unknown token, expired or revoked session and deactivated
// user all yield the same 401 — callers never learn the cause. On success the
// context is attached to the returned request for downstream audit
// enrichment.
func (a *API) requireAuth(w http.ResponseWriter, r *http.Request) (*auth.Context, *http.Request, bool) {
	cookie, err := r.Cookie(a.cfg.SessionCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, r, false
	}
	ac, err := a.sessions.Resolve(r.Context(), cookie.Value)
	if err != nil {
		a.log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("session resolution failed")
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return nil, r, false
	}
	if ac == nil {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, r, false
	}
	r = r.WithContext(auth.WithContext(r.Context(), ac))
	return ac, r, true
}

// ensure evaluates a policy requirement; admin contexts short-circuit to
// allow. Denials are a bare 403 without naming the missing permission.
func (a *API) ensure(w http.ResponseWriter, r *http.Request, ac *auth.Context, req auth.Requirement) bool {
	if !auth.Evaluate(ac, req) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}
