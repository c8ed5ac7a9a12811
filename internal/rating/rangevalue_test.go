package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRangeValue(t *testing.T) {
	tests := []struct {
		name      string
		rangeType RangeType
		value     string
		want      RangeSpec
		wantErr   bool
	}{
		{name: "plain range", rangeType: RangeTypeRange, value: "0-10", want: RangeSpec{Type: RangeTypeRange, Min: 0, Max: 10}},
		{name: "negative in parentheses", rangeType: RangeTypeRange, value: "(-1)-0", want: RangeSpec{Type: RangeTypeRange, Min: -1, Max: 0}},
		{name: "thousands separator", rangeType: RangeTypeRange, value: "0-10,000", want: RangeSpec{Type: RangeTypeRange, Min: 0, Max: 10000}},
		{name: "leading sign", rangeType: RangeTypeRange, value: "-5-10", want: RangeSpec{Type: RangeTypeRange, Min: -5, Max: 10}},
		{name: "min above max", rangeType: RangeTypeRange, value: "10-5", wantErr: true},
		{name: "no separator", rangeType: RangeTypeRange, value: "10", wantErr: true},
		{name: "garbage bound", rangeType: RangeTypeRange, value: "a-b", wantErr: true},
		{name: "selection", rangeType: RangeTypeSelection, value: "A, B ,C", want: RangeSpec{Type: RangeTypeSelection, Options: []string{"A", "B", "C"}}},
		{name: "empty selection", rangeType: RangeTypeSelection, value: " , ", wantErr: true},
		{name: "threshold", rangeType: RangeTypeGreaterEqual, value: "3.5", want: RangeSpec{Type: RangeTypeGreaterEqual, Threshold: 3.5}},
		{name: "bad threshold", rangeType: RangeTypeLess, value: "low", wantErr: true},
		{name: "open", rangeType: RangeTypeOpen, value: "anything", want: RangeSpec{Type: RangeTypeOpen}},
		{name: "unknown type", rangeType: "between", value: "1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRangeValue(tt.rangeType, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParameter_Validate(t *testing.T) {
	tests := []struct {
		name    string
		param   Parameter
		field   string
		wantErr bool
	}{
		{name: "valid range", param: Parameter{ID: "Z1", Unit: UnitPercent, RangeType: RangeTypeRange, RangeValue: "0-100"}},
		{name: "range without domain", param: Parameter{ID: "Z2", RangeType: RangeTypeRange}},
		{name: "valid selection", param: Parameter{ID: "Z3", RangeType: RangeTypeSelection, RangeValue: "yes,no"}},
		{name: "missing id", param: Parameter{RangeType: RangeTypeOpen}, field: "id", wantErr: true},
		{name: "unknown range type", param: Parameter{ID: "P", RangeType: "fuzzy"}, field: "rangeType", wantErr: true},
		{name: "unknown unit", param: Parameter{ID: "P", Unit: "furlong", RangeType: RangeTypeOpen}, field: "unit", wantErr: true},
		{name: "selection without options", param: Parameter{ID: "P", RangeType: RangeTypeSelection}, field: "rangeValue", wantErr: true},
		{name: "threshold not numeric", param: Parameter{ID: "P", RangeType: RangeTypeGreater, RangeValue: "x"}, field: "rangeValue", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.param.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
