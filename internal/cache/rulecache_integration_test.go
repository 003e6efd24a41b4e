//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estimatrack/estimatrack/internal/cache"
	"github.com/estimatrack/estimatrack/internal/config"
	"github.com/estimatrack/estimatrack/internal/rules"
	"github.com/estimatrack/estimatrack/internal/testsupport"
)

// countingRepo wraps a static rule set and counts store reads, so the tests
// can prove which layer served a request.
type countingRepo struct {
	rules []rules.Rule
	reads int
}

func (c *countingRepo) ListEnabledRules(ctx context.Context, shop string) ([]rules.Rule, error) {
	c.reads++
	return c.rules, nil
}

func (c *countingRepo) GetDefaultRule(ctx context.Context, shop string) (rules.Rule, bool, error) {
	def, found := rules.LatestDefault(c.rules)
	return def, found, nil
}

func (c *countingRepo) CreateRule(ctx context.Context, r *rules.Rule) error { return nil }

func (c *countingRepo) GetRule(ctx context.Context, shop, id string) (rules.Rule, error) {
	return rules.Rule{}, nil
}

func (c *countingRepo) ListRules(ctx context.Context, shop string, limit, offset int) ([]rules.Rule, int64, error) {
	return nil, 0, nil
}

func (c *countingRepo) UpdateRule(ctx context.Context, r *rules.Rule) error { return nil }

func (c *countingRepo) DeleteRule(ctx context.Context, shop, id string) error { return nil }

func TestRuleCache_Integration(t *testing.T) {
	ctx := context.Background()

	redisCtr, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisCtr.Terminate(ctx)

	cfg := config.CacheConfig{
		Enabled:    true,
		L1Capacity: 16,
		L1TTL:      time.Minute,
		RuleTTL:    5 * time.Minute,
	}

	ruleSet := []rules.Rule{
		{
			ID:               "r1",
			Shop:             "demo.myshopify.com",
			TargetType:       rules.TargetProduct,
			TargetValue:      "42",
			CountryCodes:     []string{"*"},
			EstimatedMinDays: 2,
			EstimatedMaxDays: 4,
			Enabled:          true,
		},
	}

	t.Run("Should hit the store once and serve repeats from cache", func(t *testing.T) {
		repo := &countingRepo{rules: ruleSet}
		rc, err := cache.NewRuleCache(repo, redisCtr.Client, cfg)
		require.NoError(t, err)
		defer rc.Close()

		for i := 0; i < 3; i++ {
			got, err := rc.ListEnabledRules(ctx, "demo.myshopify.com")
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "r1", got[0].ID)
		}

		assert.Equal(t, 1, repo.reads)

		// The fill must also land in Redis for other instances.
		val, err := redisCtr.Client.Get(ctx, "rules:demo.myshopify.com").Result()
		require.NoError(t, err)
		assert.Contains(t, val, `"id":"r1"`)
	})

	t.Run("Should refill after a mutation invalidates the shop", func(t *testing.T) {
		repo := &countingRepo{rules: ruleSet}
		rc, err := cache.NewRuleCache(repo, redisCtr.Client, cfg)
		require.NoError(t, err)
		defer rc.Close()

		_, err = rc.ListEnabledRules(ctx, "inval.myshopify.com")
		require.NoError(t, err)
		require.Equal(t, 1, repo.reads)

		require.NoError(t, rc.UpdateRule(ctx, &rules.Rule{ID: "r1", Shop: "inval.myshopify.com"}))

		_, err = rc.ListEnabledRules(ctx, "inval.myshopify.com")
		require.NoError(t, err)
		assert.Equal(t, 2, repo.reads)
	})

	t.Run("Should discard a corrupted Redis entry and refill from the store", func(t *testing.T) {
		repo := &countingRepo{rules: ruleSet}
		rc, err := cache.NewRuleCache(repo, redisCtr.Client, cfg)
		require.NoError(t, err)
		defer rc.Close()

		require.NoError(t, redisCtr.Client.Set(ctx, "rules:corrupt.myshopify.com", "{not json", 0).Err())

		got, err := rc.ListEnabledRules(ctx, "corrupt.myshopify.com")
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Equal(t, 1, repo.reads)

		// The corrupted entry must have been replaced with a valid one.
		val, err := redisCtr.Client.Get(ctx, "rules:corrupt.myshopify.com").Result()
		require.NoError(t, err)
		assert.Contains(t, val, `"id":"r1"`)
	})

	t.Run("Should report a healthy Redis connection", func(t *testing.T) {
		repo := &countingRepo{rules: ruleSet}
		rc, err := cache.NewRuleCache(repo, redisCtr.Client, cfg)
		require.NoError(t, err)
		defer rc.Close()

		assert.NoError(t, rc.HealthCheck(ctx))
	})
}
