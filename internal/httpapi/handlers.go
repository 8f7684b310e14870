// Package httpapi assembles the HTTP surface: probes, metrics and the two portals behind their
// access gates.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"sitegate.io/internal/httpx"
	"sitegate.io/internal/obs"
	"sitegate.io/internal/portal"
	"sitegate.io/internal/projects"
)

const serviceName = "sitegate-api"

// Pinger is satisfied by the Postgres store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the backing stores that are configured. Nil fields are skipped.
type ReadyProbe struct {
	DB    Pinger
	Redis redis.UniversalClient
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var errs []error
	if rp.DB != nil {
		if err := rp.DB.Ping(ctx); err != nil {
			errs = append(errs, errors.New("postgres: "+err.Error()))
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, errors.New("redis: "+err.Error()))
		}
	}
	return errors.Join(errs...)
}

// Options wires the API.
type Options struct {
	Version string
	Ready   ReadyProbe
	Service *projects.Service
	// Portals are mounted under their own page prefix, each behind its gate.
	Portals []*portal.Gate

	CORSOrigins  []string
	MaxBodyBytes int64
	TrustProxy   bool
	AnonRPS      float64
	AnonBurst    int
}

// API is the HTTP layer.
type API struct {
	router  chi.Router
	opts    Options
	service *projects.Service
	anon    *AnonLimiter
}

func New(opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		opts:    opts,
		service: opts.Service,
		anon:    NewAnonLimiter(opts.AnonRPS, opts.AnonBurst, opts.TrustProxy),
	}

	r := chi.NewRouter()
	r.Use(httpx.RequestID)
	r.Use(Logging)
	r.Use(obs.Instrument)
	r.Use(CORS(opts.CORSOrigins))
	r.Use(MaxBodyBytes(opts.MaxBodyBytes))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Group(func(r chi.Router) {
		r.Use(a.anon.Middleware)
		for _, g := range opts.Portals {
			a.mountPortal(r, g)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	a.router = r
	return a
}

// Handler returns the root handler for the server.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) mountPortal(r chi.Router, g *portal.Gate) {
	cfg := g.Config()
	apiPath := strings.TrimPrefix(cfg.APIPrefix, cfg.PagePrefix)
	loginPath := strings.TrimPrefix(cfg.LoginPath, cfg.PagePrefix)

	r.Route(cfg.PagePrefix, func(pr chi.Router) {
		pr.Use(g.Middleware)

		pr.Route(apiPath, func(api chi.Router) {
			api.Post("/auth/login", g.Login)
			api.Post("/auth/logout", g.Logout)
			api.Get("/auth/session", g.Session)

			api.Get("/projects", a.listProjects)
			api.Get("/projects/{id}", a.getProject)
			api.Get("/projects/{id}/documents", a.listDocuments)
			api.Put("/profile", a.updateProfile)

			switch cfg.Name {
			case "client":
				api.Post("/documents/{id}/approve", a.decideDocument("approved"))
				api.Post("/documents/{id}/reject", a.decideDocument("rejected"))
			case "subcontractor":
				api.Post("/projects/{id}/reports", a.submitReport)
			}
			api.NotFound(func(w http.ResponseWriter, r *http.Request) {
				httpx.WriteError(w, r, http.StatusNotFound, "not found")
			})
		})

		pr.Get(loginPath, pageShell(cfg, "Sign in"))
		pr.Get("/", pageShell(cfg, "Dashboard"))
		pr.Get("/*", pageShell(cfg, "Portal"))
	})
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.opts.Ready.Check(r.Context()); err != nil {
		obs.From(r.Context()).Warn("readiness check failed", obs.Path(r.URL.Path))
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
