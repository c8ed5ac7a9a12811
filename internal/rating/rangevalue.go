package rating

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// numericReplacer strips the formatting allowed in stored bounds: negative
// numbers wrapped in parentheses and thousands separators.
var numericReplacer = strings.NewReplacer("(", "", ")", "", ",", "", " ", "")

// parseNumeric parses a stored bound such as "(-1)" or "10,000".
func parseNumeric(s string) (float64, bool) {
	s = numericReplacer.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseRaw parses a value as typed into a form. Raw values are not reformatted:
// "1,5" is rejected rather than read as 15.
func parseRaw(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// RangeSpec is the parsed form of a parameter's RangeValue.
type RangeSpec struct {
	Type      RangeType
	Min       float64
	Max       float64
	Options   []string
	Threshold float64
}

// ParseRangeValue parses rangeValue according to the grammar of rangeType:
// "min-max" for range (negative numbers in parentheses), a comma separated
// option list for selection and a single number for the comparison types.
func ParseRangeValue(rangeType RangeType, rangeValue string) (RangeSpec, error) {
	spec := RangeSpec{Type: rangeType}
	switch rangeType {
	case RangeTypeOpen:
		return spec, nil
	case RangeTypeRange:
		lo, hi, ok := splitRange(rangeValue)
		if !ok {
			return spec, fmt.Errorf("range %q is not of the form min-max", rangeValue)
		}
		minV, ok := parseNumeric(lo)
		if !ok {
			return spec, fmt.Errorf("range %q has a non-numeric lower bound", rangeValue)
		}
		maxV, ok := parseNumeric(hi)
		if !ok {
			return spec, fmt.Errorf("range %q has a non-numeric upper bound", rangeValue)
		}
		if minV > maxV {
			return spec, fmt.Errorf("range %q has min above max", rangeValue)
		}
		spec.Min, spec.Max = minV, maxV
		return spec, nil
	case RangeTypeSelection:
		for _, opt := range strings.Split(rangeValue, ",") {
			if opt = strings.TrimSpace(opt); opt != "" {
				spec.Options = append(spec.Options, opt)
			}
		}
		if len(spec.Options) == 0 {
			return spec, fmt.Errorf("selection %q lists no options", rangeValue)
		}
		return spec, nil
	case RangeTypeGreater, RangeTypeLess, RangeTypeGreaterEqual, RangeTypeLessEqual:
		t, ok := parseNumeric(rangeValue)
		if !ok {
			return spec, fmt.Errorf("threshold %q is not a number", rangeValue)
		}
		spec.Threshold = t
		return spec, nil
	default:
		return spec, fmt.Errorf("unknown range type %q", rangeType)
	}
}

// splitRange splits "min-max" on the first dash outside parentheses that is
// not a leading sign.
func splitRange(s string) (string, string, bool) {
	s = strings.TrimSpace(s)
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case '-':
			if depth == 0 && i > 0 {
				lo, hi := strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
				return lo, hi, lo != "" && hi != ""
			}
		}
	}
	return "", "", false
}

// Validate checks that RangeType and RangeValue are mutually consistent.
func (p Parameter) Validate() error {
	subject := "parameter " + p.ID
	if p.ID == "" {
		return &ConfigError{Subject: "parameter", Field: "id", Reason: "must not be empty"}
	}
	if !p.RangeType.IsValid() {
		return &ConfigError{Subject: subject, Field: "rangeType", Reason: fmt.Sprintf("unknown range type %q", p.RangeType)}
	}
	if !p.Unit.IsValid() {
		return &ConfigError{Subject: subject, Field: "unit", Reason: fmt.Sprintf("unknown unit %q", p.Unit)}
	}
	if p.RangeType == RangeTypeRange && strings.TrimSpace(p.RangeValue) == "" {
		// an empty range leaves the domain open
		return nil
	}
	if _, err := ParseRangeValue(p.RangeType, p.RangeValue); err != nil {
		return &ConfigError{Subject: subject, Field: "rangeValue", Err: err}
	}
	return nil
}
