package config

import (
	"fmt"
	"time"
)

// Fallback modes for the "no rule and no default" case.
const (
	// FallbackModeGeneric returns a fabricated generic estimate.
	FallbackModeGeneric = "generic"
	// FallbackModeStrict returns a noRulesFound signal so the caller can
	// hide the estimate section instead of showing an invented window.
	FallbackModeStrict = "strict"
)

// EstimateConfig configures the estimate resolver.
type EstimateConfig struct {
	// FallbackMode selects the behavior when neither a targeted rule nor a
	// shop default rule exists.
	FallbackMode string `envconfig:"FALLBACK_MODE" default:"generic" validate:"oneof=generic strict"`

	// GenericMinDays/GenericMaxDays define the generic fallback window.
	GenericMinDays int `envconfig:"GENERIC_MIN_DAYS" default:"5" validate:"min=0"`
	GenericMaxDays int `envconfig:"GENERIC_MAX_DAYS" default:"7" validate:"min=0"`

	// FetchTimeout bounds the rule store round trip per request.
	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"3s"`
}

// Validate checks EstimateConfig fields for correctness.
func (c *EstimateConfig) Validate() error {
	if c.GenericMinDays > c.GenericMaxDays {
		return fmt.Errorf("generic min days (%d) cannot be greater than max days (%d)", c.GenericMinDays, c.GenericMaxDays)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	return nil
}
