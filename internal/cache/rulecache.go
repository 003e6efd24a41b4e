package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maypok86/otter"
	"github.com/redis/go-redis/v9"

	"github.com/estimatrack/estimatrack/internal/config"
	"github.com/estimatrack/estimatrack/internal/estimate"
	"github.com/estimatrack/estimatrack/internal/logger"
	"github.com/estimatrack/estimatrack/internal/observability"
	"github.com/estimatrack/estimatrack/internal/rules"
	"github.com/estimatrack/estimatrack/internal/store"
	"github.com/estimatrack/estimatrack/internal/validation"
)

// keyPrefix namespaces rule set keys in Redis.
// Example: "rules:demo-shop.myshopify.com"
const keyPrefix = "rules"

// Compile-time checks: the cache stands in for the repository on both planes
// and feeds the estimate resolver directly.
var (
	_ store.RuleRepository = (*RuleCache)(nil)
	_ estimate.RuleSource  = (*RuleCache)(nil)
)

// RuleCache is a read-through cache over the rule repository.
//
// Lookup order is L1 (otter, per-process) -> L2 (Redis, shared) ->
// Postgres. Cache failures are never surfaced to the request: a broken
// Redis degrades to direct repository reads.
//
// The default rule is derived from the cached enabled set instead of a
// second store round trip, so one fill serves the whole fallback chain.
type RuleCache struct {
	l1     otter.Cache[string, []rules.Rule]
	rdb    *redis.Client
	source store.RuleRepository
	ttl    time.Duration
}

// NewRuleCache builds the layered cache.
// l1Capacity caps the number of shops held in memory; l1TTL bounds L1
// staleness (the control plane only invalidates Redis); ttl is the Redis
// expiry, mirroring how long a stale rule set may serve estimates.
func NewRuleCache(source store.RuleRepository, rdb *redis.Client, cfg config.CacheConfig) (*RuleCache, error) {
	if source == nil {
		panic("cache: rule repository cannot be nil")
	}
	validation.AssertNotNil(rdb, "redis client")

	l1, err := otter.MustBuilder[string, []rules.Rule](cfg.L1Capacity).
		WithTTL(cfg.L1TTL).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build l1 cache: %w", err)
	}

	return &RuleCache{
		l1:     l1,
		rdb:    rdb,
		source: source,
		ttl:    cfg.RuleTTL,
	}, nil
}

// ListEnabledRules returns the shop's enabled rules, filling both cache
// layers on miss.
func (c *RuleCache) ListEnabledRules(ctx context.Context, shop string) ([]rules.Rule, error) {
	if cached, found := c.l1.Get(shop); found {
		observability.RuleCacheHits.WithLabelValues("l1").Inc()
		return cached, nil
	}
	observability.RuleCacheMisses.WithLabelValues("l1").Inc()

	log := logger.FromContext(ctx)

	if cached, ok := c.readL2(ctx, shop, log); ok {
		observability.RuleCacheHits.WithLabelValues("l2").Inc()
		c.l1.Set(shop, cached)
		return cached, nil
	}
	observability.RuleCacheMisses.WithLabelValues("l2").Inc()

	ruleSet, err := c.source.ListEnabledRules(ctx, shop)
	if err != nil {
		return nil, err
	}

	c.l1.Set(shop, ruleSet)
	c.writeL2(ctx, shop, ruleSet, log)

	return ruleSet, nil
}

// GetDefaultRule derives the shop default from the cached enabled set.
// Default rules are enabled rules too, so the set fetched for matching
// already contains them.
func (c *RuleCache) GetDefaultRule(ctx context.Context, shop string) (rules.Rule, bool, error) {
	ruleSet, err := c.ListEnabledRules(ctx, shop)
	if err != nil {
		return rules.Rule{}, false, err
	}

	def, found := rules.LatestDefault(ruleSet)
	return def, found, nil
}

// CreateRule passes through to the repository and invalidates the shop.
func (c *RuleCache) CreateRule(ctx context.Context, r *rules.Rule) error {
	if err := c.source.CreateRule(ctx, r); err != nil {
		return err
	}
	c.Invalidate(ctx, r.Shop)
	return nil
}

// GetRule passes through to the repository; single-rule reads are
// admin-only and not worth caching.
func (c *RuleCache) GetRule(ctx context.Context, shop, id string) (rules.Rule, error) {
	return c.source.GetRule(ctx, shop, id)
}

// ListRules passes through to the repository.
func (c *RuleCache) ListRules(ctx context.Context, shop string, limit, offset int) ([]rules.Rule, int64, error) {
	return c.source.ListRules(ctx, shop, limit, offset)
}

// UpdateRule passes through to the repository and invalidates the shop.
func (c *RuleCache) UpdateRule(ctx context.Context, r *rules.Rule) error {
	if err := c.source.UpdateRule(ctx, r); err != nil {
		return err
	}
	c.Invalidate(ctx, r.Shop)
	return nil
}

// DeleteRule passes through to the repository and invalidates the shop.
func (c *RuleCache) DeleteRule(ctx context.Context, shop, id string) error {
	if err := c.source.DeleteRule(ctx, shop, id); err != nil {
		return err
	}
	c.Invalidate(ctx, shop)
	return nil
}

// Invalidate drops the shop's rule set from both layers. Redis failures
// are logged, not returned: the TTL still bounds staleness.
func (c *RuleCache) Invalidate(ctx context.Context, shop string) {
	c.l1.Delete(shop)

	if err := c.rdb.Del(ctx, ruleKey(shop)).Err(); err != nil {
		logger.FromContext(ctx).Warn("failed to invalidate cached rules",
			slog.String("shop", shop),
			slog.String("error", err.Error()),
		)
	}
}

// Close shuts down the L1 cache's background goroutines.
func (c *RuleCache) Close() {
	c.l1.Close()
}

// HealthCheck verifies the Redis layer is reachable.
func (c *RuleCache) HealthCheck(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// readL2 loads and decodes a rule set from Redis. A miss and a Redis
// failure both return ok=false; failures are only logged.
func (c *RuleCache) readL2(ctx context.Context, shop string, log *slog.Logger) ([]rules.Rule, bool) {
	payload, err := c.rdb.Get(ctx, ruleKey(shop)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn("redis read failed, falling through to store",
				slog.String("shop", shop),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}

	var ruleSet []rules.Rule
	if err := json.Unmarshal(payload, &ruleSet); err != nil {
		// Corrupted entry: drop it and refill from the store.
		log.Warn("discarding corrupted cache entry",
			slog.String("shop", shop),
			slog.String("error", err.Error()),
		)
		_ = c.rdb.Del(ctx, ruleKey(shop)).Err()
		return nil, false
	}

	return ruleSet, true
}

// writeL2 serializes and stores a rule set in Redis with the configured TTL.
func (c *RuleCache) writeL2(ctx context.Context, shop string, ruleSet []rules.Rule, log *slog.Logger) {
	payload, err := json.Marshal(ruleSet)
	if err != nil {
		log.Error("failed to serialize rule set for cache",
			slog.String("shop", shop),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := c.rdb.Set(ctx, ruleKey(shop), payload, c.ttl).Err(); err != nil {
		log.Warn("redis write failed",
			slog.String("shop", shop),
			slog.String("error", err.Error()),
		)
	}
}

func ruleKey(shop string) string {
	return keyPrefix + ":" + shop
}
