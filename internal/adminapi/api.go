package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/estimatrack/estimatrack/internal/store"
)

// API is the main struct that holds dependencies and the router for the
// control plane. It follows the dependency injection pattern to facilitate
// testing.
type API struct {
	// Router is the chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	// repo is the data access layer for delivery rules. The composition
	// root passes the cache-wrapping repository so mutations invalidate
	// cached rule sets.
	repo store.RuleRepository

	// apiKeyHash is the SHA-256 hash of the valid API key.
	apiKeyHash string

	// skipAuth disables authentication when true (test/dev environments only).
	skipAuth bool
}

// NewAPI creates a new API instance with authentication enabled.
// The apiKeyHash parameter must be the SHA-256 hash of the API key.
func NewAPI(repo store.RuleRepository, apiKeyHash string) *API {
	return NewAPIWithConfig(repo, apiKeyHash, false)
}

// NewAPIWithConfig creates a new API instance with explicit control over
// authentication. Primarily used in tests to disable authentication.
//
// Panics if repo is nil, or if apiKeyHash is empty while authentication is
// enabled.
func NewAPIWithConfig(repo store.RuleRepository, apiKeyHash string, skipAuth bool) *API {
	if repo == nil {
		panic("adminapi: rule repository cannot be nil")
	}
	if !skipAuth && apiKeyHash == "" {
		panic("adminapi: apiKeyHash cannot be empty when authentication is enabled")
	}

	api := &API{
		Router:     chi.NewRouter(),
		repo:       repo,
		apiKeyHash: apiKeyHash,
		skipAuth:   skipAuth,
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(RequestLogger)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(Metrics)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticateAPIKey)

		r.Route("/rules", func(r chi.Router) {
			r.Post("/", a.handleCreateRule)
			r.Get("/", a.handleListRules)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.handleGetRule)
				r.Put("/", a.handleUpdateRule)
				r.Delete("/", a.handleDeleteRule)
			})
		})
	})
}

// handleHealthCheck reports HTTP serving capability. Deep dependency checks
// live on the observability server's readiness probe.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
