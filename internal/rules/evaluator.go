// Package rules implements the threshold rule evaluator that maps a scalar
// reading to a display color.
package rules

import (
	"sort"

	"geodash/internal/types"
)

// EvaluateColor returns the color of the matching rule with the lowest
// threshold: it scans a copy of the rule set sorted by threshold ascending
// (stable, so equal thresholds keep their insertion order) and returns the
// first rule whose comparison holds against value.
//
// This makes overlapping rules behave as bands: with "<10 red" and
// "<25 blue" both matching a value of 5, red wins because it is the tighter
// bound. Insertion order in the data model never decides which rule wins;
// callers must not assume it does. An empty rule set or no match yields
// fallbackColor.
func EvaluateColor(value float64, ruleSet []types.ColorRule, fallbackColor string) string {
	if len(ruleSet) == 0 {
		return fallbackColor
	}

	sorted := make([]types.ColorRule, len(ruleSet))
	copy(sorted, ruleSet)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Threshold < sorted[j].Threshold
	})

	for _, r := range sorted {
		if matches(value, r) {
			return r.Color
		}
	}
	return fallbackColor
}

func matches(value float64, r types.ColorRule) bool {
	switch r.Operator {
	case types.OpLessThan:
		return value < r.Threshold
	case types.OpLessThanEq:
		return value <= r.Threshold
	case types.OpEqual:
		return value == r.Threshold
	case types.OpGreaterThanEq:
		return value >= r.Threshold
	case types.OpGreaterThan:
		return value > r.Threshold
	default:
		return false
	}
}
