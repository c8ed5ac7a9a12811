package rating

import (
	"fmt"
	"strings"
)

// CheckConfigured reports ErrNormNotConfigured when the norm defines no
// outputs.
func (n Norm) CheckConfigured() error {
	if len(n.OutputConfig) == 0 {
		return &ConfigError{Subject: "norm " + n.ID, Field: "outputConfig", Err: ErrNormNotConfigured}
	}
	return nil
}

// Validate checks the structural rules of a norm definition. A norm without
// outputs is valid; it is reported as not configured at evaluation time.
func (n Norm) Validate() error {
	subject := "norm " + n.ID
	if strings.TrimSpace(n.ID) == "" {
		return &ConfigError{Subject: "norm", Field: "id", Reason: "must not be empty"}
	}

	keys := make(map[string]struct{}, len(n.Parameters))
	for i, np := range n.Parameters {
		if np.ParameterID == "" {
			return &ConfigError{Subject: subject, Field: fmt.Sprintf("parameters[%d].parameterId", i), Reason: "must not be empty"}
		}
		if _, dup := keys[np.Key()]; dup {
			return &ConfigError{Subject: subject, Field: fmt.Sprintf("parameters[%d]", i), Reason: fmt.Sprintf("duplicate code %q", np.Key())}
		}
		keys[np.Key()] = struct{}{}
		if np.RangeType != "" && !np.RangeType.IsValid() {
			return &ConfigError{Subject: subject, Field: fmt.Sprintf("parameters[%d].rangeType", i), Reason: fmt.Sprintf("unknown range type %q", np.RangeType)}
		}
	}

	names := make(map[string]struct{}, len(n.OutputConfig))
	for i, o := range n.OutputConfig {
		field := fmt.Sprintf("outputConfig[%d]", i)
		if strings.TrimSpace(o.Name) == "" {
			return &ConfigError{Subject: subject, Field: field + ".name", Reason: "must not be empty"}
		}
		if _, dup := names[o.Name]; dup {
			return &ConfigError{Subject: subject, Field: field + ".name", Reason: fmt.Sprintf("duplicate output %q", o.Name)}
		}
		names[o.Name] = struct{}{}
		if _, err := ParseFormula(o.Formula); err != nil {
			return &ConfigError{Subject: subject, Field: field + ".formula", Err: err}
		}
	}

	if len(n.Classes) > 0 {
		if err := validateBands(n.Classes); err != nil {
			return &ConfigError{Subject: subject, Field: "classes", Err: err}
		}
	}
	return nil
}

// UnknownReferences returns formula references that no association of the
// norm provides. They evaluate to 0 at run time, so callers may warn on them.
func (n Norm) UnknownReferences() map[string][]string {
	keys := make(map[string]struct{}, len(n.Parameters))
	for _, code := range n.Codes() {
		keys[code] = struct{}{}
	}
	out := map[string][]string{}
	for _, o := range n.OutputConfig {
		f, err := ParseFormula(o.Formula)
		if err != nil {
			continue
		}
		for _, ref := range f.References() {
			if _, ok := keys[ref]; !ok {
				out[o.Name] = append(out[o.Name], ref)
			}
		}
	}
	return out
}
