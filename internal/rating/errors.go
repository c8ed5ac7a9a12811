package rating

import (
	"errors"
	"fmt"
)

var (
	// ErrNormNotConfigured is reported for a norm without output definitions.
	ErrNormNotConfigured = errors.New("norm has no output configuration")
	// ErrMissingRating is returned by a formula referencing an unrated code.
	ErrMissingRating = errors.New("rating not available")
	// ErrDivisionByZero is returned by a formula dividing by zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// ConfigError describes a norm or parameter definition the caller has to fix.
type ConfigError struct {
	Subject string
	Field   string
	Reason  string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := e.Subject
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// InputError describes a raw value rejected by a parameter's input rule.
type InputError struct {
	Parameter string
	Value     string
	Reason    string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %s", e.Value, e.Parameter, e.Reason)
}

// FormulaError wraps a failure while parsing or evaluating an output formula.
type FormulaError struct {
	Output  string
	Formula string
	Err     error
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("output %s (%s): %v", e.Output, e.Formula, e.Err)
}

func (e *FormulaError) Unwrap() error { return e.Err }
