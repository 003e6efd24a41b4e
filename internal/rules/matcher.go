package rules

import (
	"slices"
	"sort"
)

// Match filters the shop's rule set down to the rules applicable to the
// given product and customer country, ordered by priority ascending.
// The sort is stable, so rules with equal priority keep the order the
// store returned them in.
//
// Both predicates must hold for a rule to match:
//   - country: CountryCodes contains "*" or the exact (uppercase) country code
//   - target: dispatched on TargetType, see matchesTarget
//
// Disabled rules never match. The input slice is not mutated.
func Match(ruleSet []Rule, product Product, country string) []Rule {
	matched := make([]Rule, 0, len(ruleSet))

	for _, r := range ruleSet {
		if !r.Enabled {
			continue
		}
		if !matchesCountry(r, country) {
			continue
		}
		if !matchesTarget(r, product) {
			continue
		}
		matched = append(matched, r)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority < matched[j].Priority
	})

	return matched
}

// BestMatch returns the single applicable rule: the first element of Match,
// i.e. the lowest-priority value with store order breaking ties.
func BestMatch(ruleSet []Rule, product Product, country string) (Rule, bool) {
	matched := Match(ruleSet, product, country)
	if len(matched) == 0 {
		return Rule{}, false
	}
	return matched[0], true
}

// LatestDefault picks the shop-level fallback rule from a rule set.
// A shop may carry several is_default rules; the one with the latest
// UpdatedAt wins, which keeps the pick deterministic.
func LatestDefault(ruleSet []Rule) (Rule, bool) {
	var best Rule
	found := false

	for _, r := range ruleSet {
		if !r.Enabled || !r.IsDefault {
			continue
		}
		if !found || r.UpdatedAt.After(best.UpdatedAt) {
			best = r
			found = true
		}
	}

	return best, found
}

// matchesCountry reports whether the rule applies to the customer country.
// Comparison is a case-sensitive exact match; callers normalize the code
// to uppercase beforehand.
func matchesCountry(r Rule, country string) bool {
	for _, code := range r.CountryCodes {
		if code == Wildcard || code == country {
			return true
		}
	}
	return false
}

// matchesTarget evaluates the target predicate for the rule's type.
// The switch is exhaustive over the known types; unknown types (and the
// "default" pseudo-type) never match, rather than falling through to some
// permissive branch.
func matchesTarget(r Rule, p Product) bool {
	switch r.TargetType {
	case TargetProduct:
		return r.TargetValue == Wildcard || r.TargetValue == p.ID

	case TargetSKU:
		if r.TargetValue == Wildcard {
			return true
		}
		for _, v := range p.Variants {
			if v.SKU == r.TargetValue {
				return true
			}
		}
		return false

	case TargetTag:
		return r.TargetValue == Wildcard || slices.Contains(p.Tags, r.TargetValue)

	case TargetCollection:
		if r.TargetValue == Wildcard {
			return true
		}
		for _, c := range p.Collections {
			if c.ID == r.TargetValue {
				return true
			}
		}
		return false

	case TargetCollectionTag:
		if r.TargetValue == Wildcard {
			return true
		}
		for _, c := range p.Collections {
			if slices.Contains(c.Tags, r.TargetValue) {
				return true
			}
		}
		return false

	case TargetVariant:
		if r.TargetValue == Wildcard {
			return true
		}
		if p.VariantID != "" && p.VariantID == r.TargetValue {
			return true
		}
		for _, v := range p.Variants {
			if v.ID == r.TargetValue {
				return true
			}
		}
		return false

	case TargetDefault:
		// Default rules are fallbacks, not targets.
		return false

	default:
		// Unrecognized target type: the rule never matches.
		return false
	}
}
