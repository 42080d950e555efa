package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"credledger.org/internal/auth"
	"credledger.org/internal/ledger"
	"credledger.org/internal/obs"
)

// ReadyProbe reports readiness (pings the DB when the Postgres store is in use).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carry the HTTP layer's runtime knobs.
type Options struct {
	Version       string
	MaxBodyBytes  int64
	RatePerSecond int
	RateBurst     int
}

// API is the HTTP layer over the auth service and the ledger gateway.
type API struct {
	mux        *http.ServeMux
	accounts   *auth.Service
	gateway    ledger.Gateway
	readyProbe ReadyProbe
	opts       Options
}

func New(accounts *auth.Service, gateway ledger.Gateway, rp ReadyProbe, opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		mux:        http.NewServeMux(),
		accounts:   accounts,
		gateway:    gateway,
		readyProbe: rp,
		opts:       opts,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// identity & access
	a.mux.HandleFunc("/v1/auth/register", a.optionalAuth(a.handleRegister))
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.requireAuth(a.handleMe))
	a.mux.HandleFunc("/v1/auth/password", a.requireAuth(a.handleChangePassword))

	// account administration
	a.mux.HandleFunc("/v1/accounts", a.requireAuth(a.handleAccountsCollection, auth.RoleAdmin))
	a.mux.HandleFunc("/v1/accounts/", a.requireAuth(a.handleAccountResource, auth.RoleAdmin))

	// ledger pass-through
	a.mux.HandleFunc("/v1/records", a.requireAuth(a.handleRecordsCollection,
		auth.RoleAdmin, auth.RoleDepartment, auth.RoleFaculty))
	a.mux.HandleFunc("/v1/records/", a.requireAuth(a.handleRecordResource,
		auth.RoleAdmin, auth.RoleDepartment, auth.RoleFaculty, auth.RoleVerifier, auth.RoleStudent))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	if a.opts.RatePerSecond > 0 {
		h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSecond)
	}
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "credledger-api",
		"version": a.opts.Version,
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
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "credledger-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}
