package httpapi

import (
	"context"
	"net/http"
	"time"

	"lovedev.org/internal/auth"
	"lovedev.org/internal/obs"
)

// Pinger is what the readiness probe needs from the storage layer.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks downstream dependencies for /readyz.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// API is the HTTP layer over the auth service.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	readyProbe ReadyProbe
	version    string
}

func New(svc *auth.Service, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/verify-email", a.handleVerifyEmail)
	a.mux.HandleFunc("/v1/auth/resend-verification", a.handleResendVerification)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/reset-password", a.handleResetPassword)
	a.mux.HandleFunc("/v1/auth/change-password", a.requireAuth(a.handleChangePassword))

	a.mux.HandleFunc("/v1/users/me", a.requireAuth(a.handleMe))

	// User administration is permission-driven: the seeded grants let
	// managers read and update accounts without holding ROLE_ADMIN.
	a.mux.HandleFunc("/v1/admin/users", a.requirePermission(map[string]string{
		http.MethodGet: auth.PermUsersRead,
	}, a.handleAdminUsers))
	a.mux.HandleFunc("/v1/admin/users/", a.requirePermission(map[string]string{
		http.MethodGet:    auth.PermUsersRead,
		http.MethodPost:   auth.PermUsersWrite,
		http.MethodPut:    auth.PermUsersWrite,
		http.MethodDelete: auth.PermUsersDelete,
	}, a.handleAdminUserResource))
	a.mux.HandleFunc("/v1/admin/roles", a.requirePermission(map[string]string{
		http.MethodGet:  auth.PermRolesRead,
		http.MethodPost: auth.PermRolesWrite,
	}, a.handleAdminRoles))
	// Deleting from the role catalog stays strictly admin.
	a.mux.HandleFunc("/v1/admin/roles/", a.requireRole(auth.RoleAdmin, a.handleAdminRoleResource))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, 20, 10)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "lovedev-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
