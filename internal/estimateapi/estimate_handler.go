package estimateapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/estimatrack/estimatrack/internal/estimate"
	"github.com/estimatrack/estimatrack/internal/logger"
	"github.com/estimatrack/estimatrack/internal/observability"
)

// handleEstimateGet serves the query-string variant of the estimate lookup.
func (a *API) handleEstimateGet(w http.ResponseWriter, r *http.Request) {
	query, err := parseGetQuery(r, sessionShop(r.Context()))
	a.serveEstimate(w, r, query, err)
}

// handleEstimatePost serves the JSON body variant, which carries the full
// product context (variants, collections) the query string cannot express.
func (a *API) handleEstimatePost(w http.ResponseWriter, r *http.Request) {
	query, err := parsePostBody(r, sessionShop(r.Context()))
	a.serveEstimate(w, r, query, err)
}

// serveEstimate runs validation and resolution, then renders the outcome.
func (a *API) serveEstimate(w http.ResponseWriter, r *http.Request, query EstimateQuery, parseErr error) {
	log := logger.FromContext(r.Context())
	reqID := middleware.GetReqID(r.Context())

	if parseErr != nil {
		var vErr *ValidationError
		if errors.As(parseErr, &vErr) {
			log.Warn("bad request", slog.String("reason", vErr.Message))
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:     vErr.Message,
				RequestID: reqID,
				Timestamp: nowStamp(),
			})
			return
		}

		log.Error("failed to parse estimate request", slog.String("error", parseErr.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:     "Internal server error",
			RequestID: reqID,
			Timestamp: nowStamp(),
		})
		return
	}

	result, err := a.resolver.Resolve(r.Context(), query.Shop, query.Product, query.Country)
	if err != nil {
		if errors.Is(err, estimate.ErrUpstream) {
			log.Error("rule fetch failed",
				slog.String("shop", query.Shop),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error:     "Failed to fetch delivery estimate",
				RequestID: reqID,
				Timestamp: nowStamp(),
			})
			return
		}

		log.Error("estimate resolution failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:     "Internal server error",
			RequestID: reqID,
			Timestamp: nowStamp(),
		})
		return
	}

	observability.EstimateResolutions.WithLabelValues(resolutionOutcome(result)).Inc()

	if result.NoRulesFound {
		writeJSON(w, http.StatusOK, noRulesResponse{
			NoRulesFound: true,
			ProductID:    query.Product.ID,
			Country:      query.Country,
			RequestID:    reqID,
			Timestamp:    nowStamp(),
		})
		return
	}

	writeJSON(w, http.StatusOK, estimateResponse{
		Estimate:      result.Estimate,
		MinDays:       result.MinDays,
		MaxDays:       result.MaxDays,
		RuleName:      result.RuleName,
		ProductID:     query.Product.ID,
		Country:       query.Country,
		CustomMessage: result.CustomMessage,
		IsDefault:     result.IsDefault,
		RequestID:     reqID,
		Timestamp:     nowStamp(),
	})
}

// resolutionOutcome maps a result onto the metrics label set.
func resolutionOutcome(result estimate.Result) string {
	switch {
	case result.NoRulesFound:
		return "no_rules"
	case result.RuleName == estimate.GenericRuleName:
		return "generic_fallback"
	case result.RuleName == estimate.DefaultRuleName:
		return "shop_default"
	default:
		return "rule_match"
	}
}
