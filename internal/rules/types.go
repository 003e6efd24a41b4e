// Package rules provides the core logic for delivery rule matching.
// Given a product context and a customer country, it deterministically
// selects the applicable delivery rules from a shop's rule set.
package rules

import "time"

// Wildcard matches any value for a rule dimension (target value or country).
const Wildcard = "*"

// TargetType identifies the product dimension a rule matches against.
// It is a closed set: values outside the declared constants never match.
type TargetType string

const (
	TargetProduct       TargetType = "product"
	TargetSKU           TargetType = "sku"
	TargetTag           TargetType = "tag"
	TargetCollection    TargetType = "collection"
	TargetCollectionTag TargetType = "collection_tag"
	TargetVariant       TargetType = "variant"
	// TargetDefault marks shop-level fallback rules. Default rules are not
	// part of targeted matching; they are selected only when no targeted
	// rule applies.
	TargetDefault TargetType = "default"
)

// Valid reports whether t is one of the known target types.
func (t TargetType) Valid() bool {
	switch t {
	case TargetProduct, TargetSKU, TargetTag, TargetCollection, TargetCollectionTag, TargetVariant, TargetDefault:
		return true
	}
	return false
}

// Rule represents a stored targeting condition plus an estimated delivery window.
// It mirrors the 'delivery_rules' table and the Redis cache payload.
type Rule struct {
	// ID is the unique identifier of the rule (from DB).
	ID string `json:"id"`

	// Shop is the owning shop domain. All matching is scoped to one shop's rule set.
	Shop string `json:"shop"`

	// TargetType selects the matching dimension; TargetValue is the value to
	// match, with "*" meaning any value of that dimension.
	TargetType  TargetType `json:"target_type"`
	TargetValue string     `json:"target_value"`

	// CountryCodes is the set of uppercase ISO codes the rule applies to,
	// or ["*"] for all countries.
	CountryCodes []string `json:"country_codes"`

	// EstimatedMinDays/EstimatedMaxDays define the delivery window (min <= max).
	EstimatedMinDays int `json:"estimated_min_days"`
	EstimatedMaxDays int `json:"estimated_max_days"`

	// CustomMessage is an optional display string shown with the estimate.
	CustomMessage *string `json:"custom_message,omitempty"`

	// Enabled rules participate in matching; disabled rules never do.
	Enabled bool `json:"enabled"`

	// IsDefault marks a shop-level fallback rule.
	IsDefault bool `json:"is_default"`

	// Priority orders matched rules; lower value wins.
	Priority int `json:"priority"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Variant is a purchasable variation of a product.
type Variant struct {
	ID  string `json:"id"`
	SKU string `json:"sku"`
}

// Collection is a product grouping with its own tag set.
type Collection struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
}

// Product is the ephemeral matching context constructed per request.
// Missing slices are treated as empty containers, never as an error.
type Product struct {
	ID          string       `json:"id"`
	Tags        []string     `json:"tags"`
	VariantID   string       `json:"variantId"`
	Variants    []Variant    `json:"variants"`
	Collections []Collection `json:"collections"`
}
