package estimate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/estimatrack/estimatrack/internal/config"
	"github.com/estimatrack/estimatrack/internal/logger"
	"github.com/estimatrack/estimatrack/internal/rules"
)

// ErrUpstream tags rule store failures so the transport layer can map them
// to the dedicated "Failed to fetch delivery estimate" response instead of
// the generic internal error.
var ErrUpstream = errors.New("rule store unavailable")

// Rule name labels surfaced to the storefront.
const (
	// DefaultRuleName labels estimates derived from the shop default rule.
	DefaultRuleName = "Default Shipping"
	// GenericRuleName labels the fabricated generic fallback estimate.
	GenericRuleName = "Standard Shipping"
)

// RuleSource abstracts the rule store from the resolver's point of view.
// Both the Postgres repository and its cached wrapper satisfy it.
type RuleSource interface {
	// ListEnabledRules returns the shop's enabled rules. Order is the
	// store's deterministic order (priority asc, newest first on ties).
	ListEnabledRules(ctx context.Context, shop string) ([]rules.Rule, error)

	// GetDefaultRule returns the shop's fallback rule, or found=false when
	// the shop has none.
	GetDefaultRule(ctx context.Context, shop string) (rules.Rule, bool, error)
}

// Result is the terminal outcome of a resolution pass.
type Result struct {
	// NoRulesFound is set only in strict fallback mode when neither a
	// targeted rule nor a shop default exists. All other fields are zero.
	NoRulesFound bool

	Estimate      string
	MinDays       int
	MaxDays       int
	RuleName      string
	CustomMessage *string
	IsDefault     bool
}

// Resolver sequences rule fetch, matching and the fallback chain for one
// request. It is stateless and safe for concurrent use.
type Resolver struct {
	source RuleSource
	cfg    config.EstimateConfig
}

// NewResolver creates a Resolver. Panics if source is nil, as resolution
// is impossible without a rule store.
func NewResolver(source RuleSource, cfg config.EstimateConfig) *Resolver {
	if source == nil {
		panic("estimate: rule source cannot be nil")
	}
	return &Resolver{source: source, cfg: cfg}
}

// Resolve runs a single pass: fetch → match → shop default → configured
// fallback. There are no retries; the system is read-mostly and idempotent,
// so retry policy belongs to the caller.
//
// Errors are always ErrUpstream-wrapped fetch failures; every other path
// produces a terminal Result.
func (r *Resolver) Resolve(ctx context.Context, shop string, product rules.Product, country string) (Result, error) {
	log := logger.FromContext(ctx)

	// The store round trip is the only blocking I/O in the request path,
	// so it gets a bounded timeout. A timeout surfaces as the fetch-error
	// path, same as any other store failure.
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	ruleSet, err := r.source.ListEnabledRules(fetchCtx, shop)
	if err != nil {
		return Result{}, fmt.Errorf("%w: listing rules for shop %q: %w", ErrUpstream, shop, err)
	}

	if best, ok := rules.BestMatch(ruleSet, product, country); ok {
		log.Debug("delivery rule matched",
			slog.String("rule_id", best.ID),
			slog.String("target_type", string(best.TargetType)),
			slog.Int("priority", best.Priority),
		)
		return Result{
			Estimate:      FormatWindow(best.EstimatedMinDays, best.EstimatedMaxDays),
			MinDays:       best.EstimatedMinDays,
			MaxDays:       best.EstimatedMaxDays,
			RuleName:      best.TargetValue,
			CustomMessage: best.CustomMessage,
			IsDefault:     false,
		}, nil
	}

	// No targeted rule applied; fall back to the shop default.
	def, found, err := r.source.GetDefaultRule(fetchCtx, shop)
	if err != nil {
		return Result{}, fmt.Errorf("%w: fetching default rule for shop %q: %w", ErrUpstream, shop, err)
	}
	if found {
		return Result{
			Estimate:      FormatWindow(def.EstimatedMinDays, def.EstimatedMaxDays),
			MinDays:       def.EstimatedMinDays,
			MaxDays:       def.EstimatedMaxDays,
			RuleName:      DefaultRuleName,
			CustomMessage: def.CustomMessage,
			IsDefault:     true,
		}, nil
	}

	if r.cfg.FallbackMode == config.FallbackModeStrict {
		log.Debug("no rules found for shop", slog.String("shop", shop))
		return Result{NoRulesFound: true}, nil
	}

	return Result{
		Estimate:  FormatWindow(r.cfg.GenericMinDays, r.cfg.GenericMaxDays),
		MinDays:   r.cfg.GenericMinDays,
		MaxDays:   r.cfg.GenericMaxDays,
		RuleName:  GenericRuleName,
		IsDefault: true,
	}, nil
}
