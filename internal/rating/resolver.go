package rating

import "strings"

// Rule is the rating rule of one parameter under a norm.
type Rule struct {
	RangeType         RangeType
	RatingRanges      []RatingRange
	AcceptsImpurities bool
}

// Match rates raw under the rule. ImpuritiesValue is only rated for range
// rules that accept it.
func (r Rule) Match(raw string) (float64, bool) {
	if r.AcceptsImpurities && r.RangeType == RangeTypeRange && strings.TrimSpace(raw) == ImpuritiesValue {
		return ImpuritiesRating, true
	}
	return MatchRating(r.RangeType, r.RatingRanges, raw)
}

// Rules maps parameter codes to their rules.
type Rules map[string]Rule

// Ratings maps parameter codes to resolved ratings.
type Ratings map[string]float64

// RulesFromNorm builds the rule set of a norm. Associations without a range
// type are treated as selection when any band limit is non-numeric, and as
// range otherwise.
func RulesFromNorm(norm Norm) Rules {
	rules := make(Rules, len(norm.Parameters))
	for _, np := range norm.Parameters {
		rt := np.RangeType
		if rt == "" {
			rt = inferRangeType(np.RatingRanges)
		}
		rules[np.Key()] = Rule{RangeType: rt, RatingRanges: np.RatingRanges, AcceptsImpurities: np.AcceptsImpurities}
	}
	return rules
}

func inferRangeType(ranges []RatingRange) RangeType {
	for _, r := range ranges {
		if _, ok := r.Min.Float(); !ok {
			return RangeTypeSelection
		}
	}
	return RangeTypeRange
}

// ResolveRatings rates every non-empty value that has a rule. Codes without a
// rule or without a matching band are left out.
func ResolveRatings(values map[string]string, rules Rules) Ratings {
	out := make(Ratings)
	for code, raw := range values {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		rule, ok := rules[code]
		if !ok {
			continue
		}
		if r, ok := rule.Match(raw); ok {
			out[code] = r
		}
	}
	return out
}
