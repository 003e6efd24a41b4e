// Package estimateapi implements the public HTTP plane serving delivery
// estimates to storefront widgets. It handles request parsing, validation,
// rate limiting, and response formatting.
package estimateapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/estimatrack/estimatrack/internal/rules"
)

// Input format rules, compiled once at package initialization.
var (
	productIDRegex = regexp.MustCompile(`^\d+$`)
	countryRegex   = regexp.MustCompile(`^[A-Za-z]+$`)
)

// defaultCountry applies when the widget sends no country at all.
const defaultCountry = "US"

// EstimateQuery is the parsed and validated input of an estimate lookup.
type EstimateQuery struct {
	// Shop is the storefront domain owning the rules.
	Shop string

	// Country is the normalized ISO code (uppercase, 2-3 letters).
	Country string

	// Product carries the identifiers the matcher runs its predicates
	// against. GET requests fill ID, VariantID, and Tags from the query
	// string; POST requests may carry the full variant and collection
	// context in the body.
	Product rules.Product
}

// estimateBody is the POST payload. It mirrors the query parameters and
// adds the product context a storefront script can assemble client-side.
type estimateBody struct {
	ProductID   string             `json:"productId"`
	Country     string             `json:"country"`
	VariantID   string             `json:"variantId,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	Variants    []rules.Variant    `json:"variants,omitempty"`
	Collections []rules.Collection `json:"collections,omitempty"`
}

// ValidationError carries the exact client-facing message for a rejected
// input. Messages are part of the widget contract and must not change.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// parseGetQuery builds an EstimateQuery from URL parameters.
// Accepted parameters: productId (alias product_id), country, variantId,
// tags (CSV), shop. sessionShop, when non-empty, overrides the shop
// parameter because it comes from a verified proxy signature.
func parseGetQuery(r *http.Request, sessionShop string) (EstimateQuery, error) {
	q := r.URL.Query()

	productID := q.Get("productId")
	if productID == "" {
		productID = q.Get("product_id")
	}

	var tags []string
	if raw := strings.TrimSpace(q.Get("tags")); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	return buildQuery(
		productID,
		q.Get("country"),
		q.Get("variantId"),
		tags,
		nil,
		nil,
		resolveShop(sessionShop, q.Get("shop")),
	)
}

// parsePostBody builds an EstimateQuery from a JSON request body.
func parsePostBody(r *http.Request, sessionShop string) (EstimateQuery, error) {
	var body estimateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return EstimateQuery{}, &ValidationError{
			Message: fmt.Sprintf("Invalid request format: %v", err),
		}
	}

	return buildQuery(
		body.ProductID,
		body.Country,
		body.VariantID,
		body.Tags,
		body.Variants,
		body.Collections,
		resolveShop(sessionShop, r.URL.Query().Get("shop")),
	)
}

// buildQuery validates raw inputs and assembles the normalized query.
// Checks run in a fixed order so the first failure always produces the
// same message for the same input.
func buildQuery(productID, country, variantID string, tags []string, variants []rules.Variant, collections []rules.Collection, shop string) (EstimateQuery, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return EstimateQuery{}, &ValidationError{
			Message: "Product ID is required and must be a non-empty string",
		}
	}
	if !productIDRegex.MatchString(productID) {
		return EstimateQuery{}, &ValidationError{
			Message: "Product ID must contain only numbers",
		}
	}

	country = strings.TrimSpace(country)
	if country == "" {
		country = defaultCountry
	}
	if len(country) < 2 || len(country) > 3 {
		return EstimateQuery{}, &ValidationError{
			Message: "Country must be a valid 2-3 character country code",
		}
	}
	if !countryRegex.MatchString(country) {
		return EstimateQuery{}, &ValidationError{
			Message: "Country code must contain only letters",
		}
	}

	return EstimateQuery{
		Shop:    shop,
		Country: strings.ToUpper(country),
		Product: rules.Product{
			ID:          productID,
			VariantID:   strings.TrimSpace(variantID),
			Tags:        tags,
			Variants:    variants,
			Collections: collections,
		},
	}, nil
}

// resolveShop prefers the session shop established by the verified proxy
// signature over whatever the client put in the query string.
func resolveShop(sessionShop, queryShop string) string {
	if sessionShop != "" {
		return sessionShop
	}
	return strings.TrimSpace(queryShop)
}

// estimateResponse is the success payload of the estimate endpoint.
type estimateResponse struct {
	Estimate      string  `json:"estimate"`
	MinDays       int     `json:"minDays"`
	MaxDays       int     `json:"maxDays"`
	RuleName      string  `json:"ruleName"`
	ProductID     string  `json:"productId"`
	Country       string  `json:"country"`
	CustomMessage *string `json:"customMessage,omitempty"`
	IsDefault     bool    `json:"isDefault"`
	RequestID     string  `json:"requestId"`
	Timestamp     string  `json:"timestamp"`
}

// noRulesResponse is returned in strict fallback mode when nothing matches.
type noRulesResponse struct {
	NoRulesFound bool   `json:"noRulesFound"`
	ProductID    string `json:"productId"`
	Country      string `json:"country"`
	RequestID    string `json:"requestId"`
	Timestamp    string `json:"timestamp"`
}

// errorResponse is the uniform error payload of the data plane.
type errorResponse struct {
	Error      string `json:"error"`
	RequestID  string `json:"requestId"`
	Timestamp  string `json:"timestamp"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// nowStamp formats the current time the way the widget expects.
func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
