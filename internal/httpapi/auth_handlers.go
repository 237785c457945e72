package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"screener.dev/internal/audit"
	"screener.dev/internal/auth"
	"screener.dev/internal/obs"
	"screener.dev/internal/ratelimit"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=1,max=512"`
}

type loginResponse struct {
	User             auth.User `json:"user"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.checkValid(req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	email := auth.NormalizeEmail(req.Email)
	key := ratelimit.Key(audit.ClientIPFromContext(r.Context()), email)

	dec, err := a.limiter.Allow(r.Context(), key)
	if err != nil {
		// A broken throttle backend must not take logins down with it.
		a.log.Warn().Err(err).Msg("login throttle check failed, allowing attempt")
		dec = ratelimit.Decision{Allowed: true}
	}
	if !dec.Allowed {
		obs.ObserveLogin("throttled")
		if dec.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(dec.RetryAfter.Seconds()+0.5)))
		}
		writeError(w, r, http.StatusTooManyRequests, "too many failed login attempts, try again later")
		return
	}

	user, err := a.svc.Authenticate(r.Context(), email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			if rerr := a.limiter.RecordFailure(r.Context(), key); rerr != nil {
				a.log.Warn().Err(rerr).Msg("login throttle record failed")
			}
			obs.ObserveLogin("failure")
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		a.handleServiceError(w, r, err)
		return
	}
	if err := a.limiter.RecordSuccess(r.Context(), key); err != nil {
		a.log.Warn().Err(err).Msg("login throttle reset failed")
	}

	// A stale session cookie on a fresh login is revoked so the old token
	// cannot outlive the new session.
	if prev, err := r.Cookie(a.cfg.SessionCookieName); err == nil && prev.Value != "" {
		if err := a.sessions.RevokeByToken(r.Context(), prev.Value); err != nil {
			a.log.Warn().Err(err).Msg("revoking previous session failed")
		}
	}

	sess, rawToken, err := a.sessions.Create(r.Context(), user.ID, audit.ClientIPFromContext(r.Context()), r.UserAgent())
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	csrf, err := a.codec.GenerateCSRFToken()
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	a.setAuthCookies(w, rawToken, csrf, sess.ExpiresAt)

	a.recorder.Record(auth.WithContext(r.Context(), &auth.Context{User: user}), auth.AuditEntry{
		Action:     "auth.login",
		EntityType: "session",
		EntityID:   sess.ID,
	})
	obs.ObserveLogin("success")

	writeJSON(w, http.StatusOK, loginResponse{User: user, SessionExpiresAt: sess.ExpiresAt})
}

// handleLogout always answers 200: revealing whether the presented token was
// live would leak session state to an unauthenticated caller.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if cookie, err := r.Cookie(a.cfg.SessionCookieName); err == nil && cookie.Value != "" {
		ctx := r.Context()
		if ac, rerr := a.sessions.Resolve(ctx, cookie.Value); rerr == nil && ac != nil {
			a.recorder.Record(auth.WithContext(ctx, ac), auth.AuditEntry{
				Action:     "auth.logout",
				EntityType: "session",
				EntityID:   ac.SessionID,
			})
		}
		if err := a.sessions.RevokeByToken(ctx, cookie.Value); err != nil {
			a.log.Warn().Err(err).Msg("session revocation failed")
		} else {
			obs.ObserveSessionRevoked()
		}
	}
	a.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

type meResponse struct {
	User             auth.User `json:"user"`
	Roles            []string  `json:"roles"`
	Permissions      []string  `json:"permissions"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
}

// handleMe resolves the caller's identity and rotates the session token, so
// every successful call invalidates the previous cookie value.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ac, r, ok := a.requireAuth(w, r)
	if !ok {
		return
	}

	sess, rawToken, err := a.sessions.Rotate(r.Context(), ac, audit.ClientIPFromContext(r.Context()), r.UserAgent())
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	csrf, err := a.codec.GenerateCSRFToken()
	if err != nil {
		a.handleServiceError(w, r, err)
		return
	}
	a.setAuthCookies(w, rawToken, csrf, sess.ExpiresAt)

	writeJSON(w, http.StatusOK, meResponse{
		User:             ac.User,
		Roles:            ac.Roles,
		Permissions:      ac.Permissions,
		SessionExpiresAt: sess.ExpiresAt,
	})
}

// setAuthCookies writes the session cookie (HttpOnly) and the CSRF cookie
// (script-readable so the frontend can echo it in a header). Both are
// SameSite=Strict; the same-origin middleware remains the binding CSRF
// control either way.
func (a *API) setAuthCookies(w http.ResponseWriter, rawToken, csrfToken string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.SessionCookieName,
		Value:    rawToken,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CSRFCookieName,
		Value:    csrfToken,
		Path:     "/",
		Expires:  expires,
		HttpOnly: false,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{a.cfg.SessionCookieName, a.cfg.CSRFCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name == a.cfg.SessionCookieName,
			Secure:   a.cfg.CookieSecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
