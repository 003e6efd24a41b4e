package estimateapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/estimatrack/estimatrack/internal/estimate"
	"github.com/estimatrack/estimatrack/internal/observability"
	"github.com/estimatrack/estimatrack/internal/ratelimit"
)

// basePath mirrors the storefront proxy prefix the widget calls through.
const basePath = "/apps/estimatrack/api"

// API holds the data plane dependencies and router.
// It follows the dependency injection pattern to facilitate testing.
type API struct {
	// Router is the chi multiplexer handling estimate traffic.
	Router *chi.Mux

	resolver *estimate.Resolver
	limiter  *ratelimit.Limiter
	agg      *observability.Aggregator
	logger   *slog.Logger

	// proxySecret signs app-proxy requests; empty disables verification
	// (local development).
	proxySecret string
}

// NewAPI creates the data plane API and wires its routes.
// Panics if any dependency is nil, the composition root must provide all
// of them.
func NewAPI(resolver *estimate.Resolver, limiter *ratelimit.Limiter, agg *observability.Aggregator, log *slog.Logger, proxySecret string) *API {
	if resolver == nil {
		panic("estimateapi: resolver cannot be nil")
	}
	if limiter == nil {
		panic("estimateapi: rate limiter cannot be nil")
	}
	if agg == nil {
		panic("estimateapi: aggregator cannot be nil")
	}
	if log == nil {
		panic("estimateapi: logger cannot be nil")
	}

	api := &API{
		Router:      chi.NewRouter(),
		resolver:    resolver,
		limiter:     limiter,
		agg:         agg,
		logger:      log,
		proxySecret: proxySecret,
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and endpoints.
func (a *API) configureRoutes() {
	a.Router.Use(RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(RequestLogger(a.logger))
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(Metrics(a.agg))
	// CORS last in the global stack so OPTIONS preflights short-circuit
	// before routing.
	a.Router.Use(CORS)

	a.Router.MethodNotAllowed(a.handleMethodNotAllowed)

	a.Router.Route(basePath, func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(a.limiter))
			r.Use(VerifyProxySignature(a.proxySecret))

			r.Get("/delivery-estimate", a.handleEstimateGet)
			r.Post("/delivery-estimate", a.handleEstimatePost)
		})

		r.Get("/health", a.handleHealth)
	})
}

// handleMethodNotAllowed keeps the error body shape uniform for verbs the
// widget should never send.
func (a *API) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
		Error:     "Method not allowed",
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: nowStamp(),
	})
}

// writeJSON renders a JSON payload with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// Status is already written, nothing useful to do with an encode error.
	_ = json.NewEncoder(w).Encode(payload)
}
