package adminapi

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/estimatrack/estimatrack/internal/logger"
	"github.com/estimatrack/estimatrack/internal/store"
)

// shopParam extracts and validates the mandatory shop scope. Every rule
// operation is tenant-scoped; an admin client must always say which shop it
// is acting on.
func shopParam(r *http.Request) (string, *ErrorResponse) {
	shop := strings.TrimSpace(r.URL.Query().Get("shop"))
	if shop == "" {
		return "", &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Query parameter 'shop' is required",
		}
	}
	return shop, nil
}

// handleCreateRule processes the POST /api/v1/rules request.
func (a *API) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	shop, errResp := shopParam(r)
	if errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	var req CreateRuleRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}

	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	rule := req.ToRule(shop)
	if err := a.repo.CreateRule(r.Context(), rule); err != nil {
		log.Error("failed to create rule in db", slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to create delivery rule",
		})
		return
	}

	log.Info("delivery rule created",
		slog.String("rule_id", rule.ID),
		slog.String("shop", shop),
		slog.String("target_type", string(rule.TargetType)),
	)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, rule)
}

// handleListRules processes the GET /api/v1/rules request with offset
// pagination (page, page_size).
func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	shop, errResp := shopParam(r)
	if errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	page, err := parseOptionalInt(r, "page", 1)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_QUERY_PARAM",
			Message: err.Error(),
		})
		return
	}

	pageSize, err := parseOptionalInt(r, "page_size", 10)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_QUERY_PARAM",
			Message: err.Error(),
		})
		return
	}

	// Out-of-bounds values are clamped, not rejected.
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize

	ruleSet, totalItems, err := a.repo.ListRules(r.Context(), shop, pageSize, offset)
	if err != nil {
		log.Error("failed to list rules from db", slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to list delivery rules",
		})
		return
	}

	totalPages := 0
	if totalItems > 0 {
		totalPages = int(math.Ceil(float64(totalItems) / float64(pageSize)))
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, PaginatedResponse{
		Data: ruleSet,
		Pagination: Pagination{
			TotalItems:  totalItems,
			TotalPages:  totalPages,
			CurrentPage: page,
			PageSize:    pageSize,
		},
	})
}

// handleGetRule processes the GET /api/v1/rules/{id} request.
func (a *API) handleGetRule(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	shop, errResp := shopParam(r)
	if errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	id := chi.URLParam(r, "id")

	rule, err := a.repo.GetRule(r.Context(), shop, id)
	if err != nil {
		if errors.Is(err, store.ErrRuleNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_NOT_FOUND",
				Message: "Delivery rule not found",
			})
			return
		}

		log.Error("failed to fetch rule from db", slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to fetch delivery rule",
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, rule)
}

// handleUpdateRule processes the PUT /api/v1/rules/{id} request. The
// payload carries the full mutable state of the rule; partial updates are
// not supported.
func (a *API) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	shop, errResp := shopParam(r)
	if errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	var req CreateRuleRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}

	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	rule := req.ToRule(shop)
	rule.ID = chi.URLParam(r, "id")

	if err := a.repo.UpdateRule(r.Context(), rule); err != nil {
		if errors.Is(err, store.ErrRuleNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_NOT_FOUND",
				Message: "Delivery rule not found",
			})
			return
		}

		log.Error("failed to update rule in db", slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to update delivery rule",
		})
		return
	}

	log.Info("delivery rule updated",
		slog.String("rule_id", rule.ID),
		slog.String("shop", shop),
	)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, rule)
}

// handleDeleteRule processes the DELETE /api/v1/rules/{id} request.
func (a *API) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	shop, errResp := shopParam(r)
	if errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	id := chi.URLParam(r, "id")

	if err := a.repo.DeleteRule(r.Context(), shop, id); err != nil {
		if errors.Is(err, store.ErrRuleNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_NOT_FOUND",
				Message: "Delivery rule not found",
			})
			return
		}

		log.Error("failed to delete rule from db", slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to delete delivery rule",
		})
		return
	}

	log.Info("delivery rule deleted",
		slog.String("rule_id", id),
		slog.String("shop", shop),
	)
	render.NoContent(w, r)
}

// parseOptionalInt extracts an integer from the query string.
// Missing parameters fall back to defaultValue; present but malformed ones
// return an error.
func parseOptionalInt(r *http.Request, key string, defaultValue int) (int, error) {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("parameter '%s' must be an integer", key)
	}
	return val, nil
}
