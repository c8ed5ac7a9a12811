package rating

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormula_Eval(t *testing.T) {
	ratings := Ratings{"Z1": 4, "Z2": -6, "Z 3": 1}

	tests := []struct {
		name    string
		formula string
		want    float64
	}{
		{name: "sum of ratings", formula: "values.Z1 + values.Z2", want: -2},
		{name: "precedence", formula: "1 + 2 * 3", want: 7},
		{name: "parentheses", formula: "(1 + 2) * 3", want: 9},
		{name: "left associative", formula: "10 - 4 - 3", want: 3},
		{name: "unary minus", formula: "-values.Z1", want: -4},
		{name: "double negation", formula: "- -values.Z1", want: 4},
		{name: "single quoted access", formula: "values['Z1'] * 2", want: 8},
		{name: "double quoted access", formula: `values["Z2"] / 2`, want: -3},
		{name: "key with space", formula: `values["Z 3"] + 1`, want: 2},
		{name: "decimal literal", formula: "0.5 * values.Z1", want: 2},
		{name: "exponent literal", formula: "1e1 + values.Z2", want: 4},
		{name: "min with Math prefix", formula: "Math.min(values.Z1, values.Z2)", want: -6},
		{name: "max", formula: "max(values.Z1, values.Z2, 7)", want: 7},
		{name: "abs", formula: "abs(values.Z2)", want: 6},
		{name: "round half up", formula: "round(2.5)", want: 3},
		{name: "floor and ceil", formula: "floor(1.7) + ceil(1.2)", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFormula(tt.formula)
			require.NoError(t, err)
			got, err := f.Eval(ratings)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestFormula_EvalErrors(t *testing.T) {
	f, err := ParseFormula("values.Z1 + values.Z99")
	require.NoError(t, err)
	_, err = f.Eval(Ratings{"Z1": 1})
	assert.ErrorIs(t, err, ErrMissingRating)

	f, err = ParseFormula("values.Z1 / (values.Z1 - 1)")
	require.NoError(t, err)
	_, err = f.Eval(Ratings{"Z1": 1})
	assert.ErrorIs(t, err, ErrDivisionByZero)

	f, err = ParseFormula("1e308 * 10")
	require.NoError(t, err)
	_, err = f.Eval(Ratings{})
	assert.Error(t, err)
}

func TestParseFormula_Rejects(t *testing.T) {
	for _, src := range []string{
		"",
		"values.Z1 +",
		"values",
		"values[Z1]",
		"(1 + 2",
		"1 2",
		"alert(1)",
		"process.exit()",
		"values.Z1; values.Z2",
		"this.constructor",
		"`x`",
		"min()",
		"abs(1, 2)",
		"'unterminated",
	} {
		_, err := ParseFormula(src)
		assert.Error(t, err, src)
	}
}

func TestParseFormula_Limits(t *testing.T) {
	nested := func(n int) string {
		return strings.Repeat("(", n) + "values.Z1" + strings.Repeat(")", n)
	}

	f, err := ParseFormula(nested(200))
	require.NoError(t, err)
	v, err := f.Eval(Ratings{"Z1": 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	for name, src := range map[string]string{
		"parentheses":         nested(MaxFormulaDepth + 1),
		"calls":               strings.Repeat("abs(", 300) + "1" + strings.Repeat(")", 300),
		"unary signs":         strings.Repeat("-", 300) + "1",
		"huge nesting":        nested(1 << 20),
		"long operator chain": "1" + strings.Repeat(" + 1", MaxFormulaTokens),
	} {
		_, err := ParseFormula(src)
		assert.Error(t, err, name)
	}

	f, err = ParseFormula("1" + strings.Repeat(" + 1", 1000))
	require.NoError(t, err)
	v, err = f.Eval(Ratings{})
	require.NoError(t, err)
	assert.Equal(t, 1001.0, v)
}

func TestFormula_References(t *testing.T) {
	f, err := ParseFormula("values.Z1 + values['Z2'] + max(values.Z1, values.Z3)")
	require.NoError(t, err)
	assert.Equal(t, []string{"Z1", "Z2", "Z3"}, f.References())
	assert.Equal(t, "values.Z1 + values['Z2'] + max(values.Z1, values.Z3)", f.String())
}

func TestEvaluateOutputs_DefaultsFailuresToZero(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	config := []OutputDefinition{
		{Name: "B0", Formula: "values.Z1 + values.Z2"},
		{Name: "B1", Formula: "values.B0 + values.Z99"},
		{Name: "B2", Formula: "values.Z1 +"},
		{Name: "B3", Formula: "values.Z1 * 2"},
	}
	outputs, failures := EvaluateOutputs(Ratings{"Z1": 4, "Z2": -6}, config, logger)

	assert.Equal(t, Outputs{"B0": -2, "B1": 0, "B2": 0, "B3": 8}, outputs)
	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures["B1"], ErrMissingRating)
	var ferr *FormulaError
	require.ErrorAs(t, failures["B2"], &ferr)
	assert.Equal(t, "B2", ferr.Output)
	assert.Contains(t, buf.String(), `"output":"B1"`)
	assert.Contains(t, buf.String(), `"output":"B2"`)
}

func TestEvaluateOutputs_NilLogger(t *testing.T) {
	outputs, failures := EvaluateOutputs(Ratings{}, []OutputDefinition{{Name: "B0", Formula: "values.Z1"}}, nil)
	assert.Equal(t, Outputs{"B0": 0}, outputs)
	assert.Len(t, failures, 1)
}

type panicNode struct{}

func (panicNode) eval(Ratings) (float64, error) { panic("boom") }

func TestEvaluateOutputs_RecoversPanickingFormula(t *testing.T) {
	sum, err := ParseFormula("values.Z1 + values.Z2")
	require.NoError(t, err)
	compiled := []compiledOutput{
		{def: OutputDefinition{Name: "B0"}, formula: sum},
		{def: OutputDefinition{Name: "B1", Formula: "boom"}, formula: &Formula{src: "boom", root: panicNode{}}},
	}

	outputs, failures := evaluateCompiled(Ratings{"Z1": 4, "Z2": -6}, compiled, quietLogger())

	assert.Equal(t, Outputs{"B0": -2, "B1": 0}, outputs)
	require.Len(t, failures, 1)
	assert.Contains(t, failures["B1"].Error(), "formula panicked: boom")
}
