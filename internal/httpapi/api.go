// Package httpapi is the collaborator-facing HTTP adapter over the auth
// service: JSON handlers, bearer middleware, and error-to-status mapping.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/axedro/genflow-ai/internal/auth"
	"github.com/axedro/genflow-ai/internal/obs"
)

// Pinger reports backend liveness; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// API wires the auth service to HTTP routes.
type API struct {
	auth   *auth.Service
	pinger Pinger
	mux    *http.ServeMux
}

// New returns an API serving the auth routes. pinger may be nil, in which
// case /healthz only reports process liveness.
func New(svc *auth.Service, pinger Pinger) *API {
	a := &API{auth: svc, pinger: pinger, mux: http.NewServeMux()}

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/reset-password", a.handleResetPassword)
	a.mux.Handle("/v1/auth/me", a.withAuth(http.HandlerFunc(a.handleMe)))
	a.mux.Handle("/v1/auth/change-password", a.withAuth(http.HandlerFunc(a.handleChangePassword)))
	a.mux.Handle("/v1/auth/revoke-user-sessions", a.withAuth(http.HandlerFunc(a.handleRevokeUserSessions)))

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.Handle("/metrics", obs.Handler())

	return a
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if a.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.pinger.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Handler returns the API wrapped in the standard middleware chain.
func (a *API) Handler(burst, perSecond int) http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, burst, perSecond)
	h = obs.Instrument(h)
	h = Logging(h)
	return h
}
