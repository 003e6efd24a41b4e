package config

import "time"

// CacheConfig configures the layered rule cache.
type CacheConfig struct {
	// Enabled toggles the cache entirely; when false the resolver reads
	// straight from Postgres on every request.
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// L1Capacity is the max number of shop entries held in memory.
	L1Capacity int `envconfig:"L1_CAPACITY" default:"1024" validate:"min=1"`

	// L1TTL bounds staleness of the in-memory layer. Kept short because the
	// control plane only invalidates the Redis layer.
	L1TTL time.Duration `envconfig:"L1_TTL" default:"60s"`

	// RuleTTL is the Redis TTL for a shop's rule set.
	RuleTTL time.Duration `envconfig:"RULE_TTL" default:"5m"`
}
