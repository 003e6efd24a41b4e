package estimateapi

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/estimatrack/estimatrack/internal/observability"
	"github.com/estimatrack/estimatrack/internal/ratelimit"
)

// healthResponse is the public health payload the widget's operators poll.
// It combines the aggregator verdict with the full statistics snapshot and
// the rate limiter state.
type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`

	Issues []string `json:"issues,omitempty"`

	Stats     observability.Snapshot `json:"stats"`
	RateLimit ratelimit.Stats        `json:"rateLimit"`
}

// handleHealth reports aggregated service health. Unhealthy state maps to
// 503 so uptime monitors can alert on the status code alone.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := a.agg.Health()

	status := http.StatusOK
	if health.Status == observability.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	// Health must never be served stale by an intermediary cache.
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")

	writeJSON(w, status, healthResponse{
		Status:    health.Status,
		Service:   "estimatrack",
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: nowStamp(),
		Issues:    health.Issues,
		Stats:     a.agg.Stats(),
		RateLimit: a.limiter.Stats(),
	})
}
