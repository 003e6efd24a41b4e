//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estimatrack/estimatrack/internal/rules"
	"github.com/estimatrack/estimatrack/internal/store"
	"github.com/estimatrack/estimatrack/internal/testsupport"
)

const testShop = "demo.myshopify.com"

func newRule(target rules.TargetType, value string, priority int) *rules.Rule {
	return &rules.Rule{
		Shop:             testShop,
		TargetType:       target,
		TargetValue:      value,
		CountryCodes:     []string{"*"},
		EstimatedMinDays: 2,
		EstimatedMaxDays: 4,
		Enabled:          true,
		Priority:         priority,
	}
}

func TestPostgresStore_Integration(t *testing.T) {
	ctx := context.Background()

	pgCtr, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err)
	defer pgCtr.Terminate(ctx)

	repo := store.NewPostgresStore(pgCtr.DB)

	t.Run("Should populate id and timestamps on create", func(t *testing.T) {
		r := newRule(rules.TargetProduct, "42", 0)
		require.NoError(t, repo.CreateRule(ctx, r))

		assert.NotEmpty(t, r.ID)
		assert.False(t, r.CreatedAt.IsZero())
		assert.Equal(t, r.CreatedAt, r.UpdatedAt)
	})

	t.Run("Should round trip a rule through GetRule", func(t *testing.T) {
		msg := "Handled with care"
		r := newRule(rules.TargetTag, "fragile", 5)
		r.CustomMessage = &msg
		require.NoError(t, repo.CreateRule(ctx, r))

		got, err := repo.GetRule(ctx, testShop, r.ID)
		require.NoError(t, err)
		assert.Equal(t, rules.TargetTag, got.TargetType)
		assert.Equal(t, "fragile", got.TargetValue)
		require.NotNil(t, got.CustomMessage)
		assert.Equal(t, msg, *got.CustomMessage)
	})

	t.Run("Should scope GetRule to the shop", func(t *testing.T) {
		r := newRule(rules.TargetProduct, "777", 0)
		require.NoError(t, repo.CreateRule(ctx, r))

		_, err := repo.GetRule(ctx, "other.myshopify.com", r.ID)
		assert.ErrorIs(t, err, store.ErrRuleNotFound)
	})

	t.Run("Should list enabled rules in priority order", func(t *testing.T) {
		shop := "ordering.myshopify.com"

		for _, p := range []int{30, 10, 20} {
			r := newRule(rules.TargetTag, "heavy", p)
			r.Shop = shop
			require.NoError(t, repo.CreateRule(ctx, r))
		}
		disabled := newRule(rules.TargetTag, "hidden", 0)
		disabled.Shop = shop
		disabled.Enabled = false
		require.NoError(t, repo.CreateRule(ctx, disabled))

		listed, err := repo.ListEnabledRules(ctx, shop)
		require.NoError(t, err)
		require.Len(t, listed, 3)
		assert.Equal(t, 10, listed[0].Priority)
		assert.Equal(t, 20, listed[1].Priority)
		assert.Equal(t, 30, listed[2].Priority)
	})

	t.Run("Should demote other defaults when creating a new default", func(t *testing.T) {
		shop := "defaults.myshopify.com"

		first := newRule(rules.TargetDefault, "*", 0)
		first.Shop = shop
		first.IsDefault = true
		require.NoError(t, repo.CreateRule(ctx, first))

		second := newRule(rules.TargetDefault, "*", 0)
		second.Shop = shop
		second.IsDefault = true
		require.NoError(t, repo.CreateRule(ctx, second))

		def, found, err := repo.GetDefaultRule(ctx, shop)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, second.ID, def.ID)

		demoted, err := repo.GetRule(ctx, shop, first.ID)
		require.NoError(t, err)
		assert.False(t, demoted.IsDefault)
	})

	t.Run("Should report found=false when the shop has no default", func(t *testing.T) {
		_, found, err := repo.GetDefaultRule(ctx, "nodefault.myshopify.com")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Should update a rule and refresh updated_at", func(t *testing.T) {
		r := newRule(rules.TargetProduct, "100", 0)
		require.NoError(t, repo.CreateRule(ctx, r))
		created := r.UpdatedAt

		r.EstimatedMaxDays = 9
		require.NoError(t, repo.UpdateRule(ctx, r))

		assert.True(t, r.UpdatedAt.After(created))

		got, err := repo.GetRule(ctx, testShop, r.ID)
		require.NoError(t, err)
		assert.Equal(t, 9, got.EstimatedMaxDays)
	})

	t.Run("Should paginate ListRules and report the total", func(t *testing.T) {
		shop := "paging.myshopify.com"
		for i := 0; i < 5; i++ {
			r := newRule(rules.TargetTag, "bulk", i)
			r.Shop = shop
			require.NoError(t, repo.CreateRule(ctx, r))
		}

		firstPage, total, err := repo.ListRules(ctx, shop, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, firstPage, 2)

		lastPage, _, err := repo.ListRules(ctx, shop, 2, 4)
		require.NoError(t, err)
		assert.Len(t, lastPage, 1)
	})

	t.Run("Should delete a rule exactly once", func(t *testing.T) {
		r := newRule(rules.TargetProduct, "555", 0)
		require.NoError(t, repo.CreateRule(ctx, r))

		require.NoError(t, repo.DeleteRule(ctx, testShop, r.ID))
		assert.ErrorIs(t, repo.DeleteRule(ctx, testShop, r.ID), store.ErrRuleNotFound)
	})
}
