// Package adminapi implements the REST API for managing delivery rules.
// It handles HTTP routing, request decoding, validation, and response formatting.
package adminapi

import (
	"strings"

	"github.com/estimatrack/estimatrack/internal/rules"
)

// CreateRuleRequest defines the payload for creating a new delivery rule.
type CreateRuleRequest struct {
	// TargetType selects the matching dimension (product, sku, tag,
	// collection, collection_tag, variant, default).
	TargetType string `json:"target_type"`

	// TargetValue is the identifier to match, or "*" for any.
	TargetValue string `json:"target_value"`

	// CountryCodes restricts the rule to destinations, "*" for worldwide.
	CountryCodes []string `json:"country_codes"`

	EstimatedMinDays int `json:"estimated_min_days"`
	EstimatedMaxDays int `json:"estimated_max_days"`

	// CustomMessage optionally replaces the widget's standard copy.
	CustomMessage *string `json:"custom_message,omitempty"`

	// Enabled defaults to true when omitted; merchants create rules to use
	// them.
	Enabled *bool `json:"enabled,omitempty"`

	// IsDefault marks the shop's fallback rule. At most one per shop is
	// effective; the store demotes the others.
	IsDefault bool `json:"is_default"`

	// Priority orders matches, lower wins.
	Priority int `json:"priority"`
}

// Sanitize cleans up input data before validation.
func (r *CreateRuleRequest) Sanitize() {
	r.TargetType = strings.ToLower(strings.TrimSpace(r.TargetType))
	r.TargetValue = strings.TrimSpace(r.TargetValue)

	codes := r.CountryCodes[:0]
	for _, c := range r.CountryCodes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if c != rules.Wildcard {
			c = strings.ToUpper(c)
		}
		codes = append(codes, c)
	}
	r.CountryCodes = codes

	// A default rule targets everything; normalize the wildcard in.
	if r.TargetType == string(rules.TargetDefault) && r.TargetValue == "" {
		r.TargetValue = rules.Wildcard
	}
}

// Validate checks the request against business rules. Returns a structured
// *ErrorResponse if validation fails, or nil if valid.
func (r *CreateRuleRequest) Validate() *ErrorResponse {
	if !rules.TargetType(r.TargetType).Valid() {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Target type must be one of: product, sku, tag, collection, collection_tag, variant, default",
		}
	}

	if r.TargetValue == "" {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Target value is required",
		}
	}

	if len(r.CountryCodes) == 0 {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "At least one country code is required",
		}
	}

	if r.EstimatedMinDays < 0 || r.EstimatedMaxDays < 0 {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Estimated days must not be negative",
		}
	}

	if r.EstimatedMinDays > r.EstimatedMaxDays {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Estimated minimum days must not exceed maximum days",
		}
	}

	if r.Priority < 0 {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Priority must not be negative",
		}
	}

	return nil
}

// ToRule maps the validated request onto the domain model.
func (r *CreateRuleRequest) ToRule(shop string) *rules.Rule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	return &rules.Rule{
		Shop:             shop,
		TargetType:       rules.TargetType(r.TargetType),
		TargetValue:      r.TargetValue,
		CountryCodes:     r.CountryCodes,
		EstimatedMinDays: r.EstimatedMinDays,
		EstimatedMaxDays: r.EstimatedMaxDays,
		CustomMessage:    r.CustomMessage,
		Enabled:          enabled,
		IsDefault:        r.IsDefault,
		Priority:         r.Priority,
	}
}

// PaginatedResponse is a standard wrapper for list endpoints to support
// offset pagination.
type PaginatedResponse struct {
	// Data holds the list of resources.
	Data any `json:"data"`

	// Pagination contains the pager metadata.
	Pagination Pagination `json:"pagination"`
}

// Pagination metadata for the frontend pager.
type Pagination struct {
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`
}
