package rating

import (
	"fmt"
	"log/slog"
)

// Outputs maps output names to scores.
type Outputs map[string]float64

// compiledOutput is an output definition with its parsed formula, or the
// parse error that will default it to zero.
type compiledOutput struct {
	def     OutputDefinition
	formula *Formula
	err     error
}

func compileOutputs(config []OutputDefinition) []compiledOutput {
	out := make([]compiledOutput, len(config))
	for i, def := range config {
		f, err := ParseFormula(def.Formula)
		out[i] = compiledOutput{def: def, formula: f, err: err}
	}
	return out
}

// EvaluateOutputs computes every configured output against ratings. A failing
// formula yields 0 for its own output and is reported in the second return
// value keyed by output name; siblings are unaffected.
func EvaluateOutputs(ratings Ratings, config []OutputDefinition, logger *slog.Logger) (Outputs, map[string]error) {
	return evaluateCompiled(ratings, compileOutputs(config), logger)
}

func evaluateCompiled(ratings Ratings, compiled []compiledOutput, logger *slog.Logger) (Outputs, map[string]error) {
	outputs := make(Outputs, len(compiled))
	var failures map[string]error
	for _, c := range compiled {
		v, err := evalOne(c, ratings)
		if err != nil {
			if failures == nil {
				failures = make(map[string]error)
			}
			ferr := &FormulaError{Output: c.def.Name, Formula: c.def.Formula, Err: err}
			failures[c.def.Name] = ferr
			if logger != nil {
				logger.Warn("Output formula failed, defaulting to 0",
					"output", c.def.Name,
					"formula", c.def.Formula,
					"error", err,
				)
			}
			v = 0
		}
		outputs[c.def.Name] = v
	}
	return outputs, failures
}

func evalOne(c compiledOutput, ratings Ratings) (v float64, err error) {
	if c.err != nil {
		return 0, c.err
	}
	defer func() {
		if r := recover(); r != nil {
			v, err = 0, fmt.Errorf("formula panicked: %v", r)
		}
	}()
	return c.formula.Eval(ratings)
}
