package rating

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// ImpuritiesValue is the literal entered for soil with impurities such as
	// ash, slag or coal. It overrides the numeric bands of a range parameter
	// that accepts it.
	ImpuritiesValue = "impurities"
	// ImpuritiesRating is the rating awarded for ImpuritiesValue.
	ImpuritiesRating = -12.0
)

// MatchRating rates one raw value against a parameter's bands. The second
// return value is false when the value is unrated: empty, unparseable, outside
// every band, or of a type that carries no rating. ImpuritiesValue is not
// numeric here; see Rule.Match.
func MatchRating(rangeType RangeType, ranges []RatingRange, raw string) (float64, bool) {
	switch rangeType {
	case RangeTypeRange:
		v, ok := parseRaw(raw)
		if !ok {
			return 0, false
		}
		return matchNumeric(ranges, v)
	case RangeTypeSelection:
		for _, r := range ranges {
			if r.Min.String() == raw {
				return r.Rating, true
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

type numericBand struct {
	min, max float64
	bounded  bool
	rating   float64
}

// matchNumeric orders the bands by min descending and returns the first band
// with min <= v < max. Bands with unparseable limits never match.
func matchNumeric(ranges []RatingRange, v float64) (float64, bool) {
	bands := make([]numericBand, 0, len(ranges))
	for _, r := range ranges {
		lo, ok := r.Min.Float()
		if !ok {
			continue
		}
		b := numericBand{min: lo, rating: r.Rating}
		if r.Max != nil && r.Max.String() != "" {
			hi, ok := r.Max.Float()
			if !ok {
				continue
			}
			b.max, b.bounded = hi, true
		}
		bands = append(bands, b)
	}
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].min > bands[j].min })

	for _, b := range bands {
		if v < b.min {
			continue
		}
		if b.bounded && v >= b.max {
			continue
		}
		return b.rating, true
	}
	return 0, false
}

// ValidateInput checks a raw form value against the parameter's input rule.
// An empty value is valid: it simply has not been entered yet.
func ValidateInput(p Parameter, raw string) error {
	if strings.TrimSpace(raw) == "" || p.RangeType == RangeTypeOpen {
		return nil
	}
	fail := func(reason string) error {
		return &InputError{Parameter: p.ID, Value: raw, Reason: reason}
	}
	if p.RangeType == RangeTypeRange && p.AcceptsImpurities && strings.TrimSpace(raw) == ImpuritiesValue {
		return nil
	}
	if p.RangeType == RangeTypeRange && strings.TrimSpace(p.RangeValue) == "" {
		if _, ok := parseRaw(raw); !ok {
			return fail("not a number")
		}
		return nil
	}

	spec, err := ParseRangeValue(p.RangeType, p.RangeValue)
	if err != nil {
		return &ConfigError{Subject: "parameter " + p.ID, Field: "rangeValue", Err: err}
	}

	if p.RangeType == RangeTypeSelection {
		for _, opt := range spec.Options {
			if opt == raw {
				return nil
			}
		}
		return fail(fmt.Sprintf("must be one of %s", strings.Join(spec.Options, ", ")))
	}

	v, ok := parseRaw(raw)
	if !ok {
		return fail("not a number")
	}
	switch p.RangeType {
	case RangeTypeRange:
		if v < spec.Min || v > spec.Max {
			return fail(fmt.Sprintf("must be between %g and %g", spec.Min, spec.Max))
		}
	case RangeTypeGreater:
		if v <= spec.Threshold {
			return fail(fmt.Sprintf("must be greater than %g", spec.Threshold))
		}
	case RangeTypeGreaterEqual:
		if v < spec.Threshold {
			return fail(fmt.Sprintf("must be at least %g", spec.Threshold))
		}
	case RangeTypeLess:
		if v >= spec.Threshold {
			return fail(fmt.Sprintf("must be less than %g", spec.Threshold))
		}
	case RangeTypeLessEqual:
		if v > spec.Threshold {
			return fail(fmt.Sprintf("must be at most %g", spec.Threshold))
		}
	}
	return nil
}
