package config

import (
	"fmt"
	"time"
)

// RateLimitConfig configures the per-IP sliding window admission control
// on the public estimate API.
type RateLimitConfig struct {
	// Limit is the maximum number of requests per IP per window.
	Limit int `envconfig:"LIMIT" default:"100" validate:"min=1"`

	// Window is the sliding window duration.
	Window time.Duration `envconfig:"WINDOW" default:"60s"`

	// SweepInterval controls how often idle IP entries are dropped.
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
}

// Validate checks RateLimitConfig fields for correctness.
func (c *RateLimitConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.Window)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("rate limit sweep interval must be positive, got %s", c.SweepInterval)
	}
	return nil
}
