package database

import (
	"testing"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/rating"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaseConversion(t *testing.T) {
	tests := []struct {
		camel string
		snake string
	}{
		{camel: "stressLabel", snake: "stress_label"},
		{camel: "outputConfig", snake: "output_config"},
		{camel: "ratingRanges", snake: "rating_ranges"},
		{camel: "min", snake: "min"},
		{camel: "sequentialId", snake: "sequential_id"},
	}

	for _, tt := range tests {
		t.Run(tt.camel, func(t *testing.T) {
			assert.Equal(t, tt.snake, SnakeCase(tt.camel))
			assert.Equal(t, tt.camel, CamelCase(tt.snake))
		})
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	zero := 0.0
	classes := []rating.ClassBand{
		{Min: &zero, Class: "Ia", StressLabel: "Very low"},
		{Class: "III", StressLabel: "High"},
	}

	doc, err := encodeDocument(classes)
	require.NoError(t, err)
	assert.Contains(t, doc, `"stress_label":"Very low"`)
	assert.NotContains(t, doc, "stressLabel")

	var decoded []rating.ClassBand
	require.NoError(t, decodeDocument(doc, &decoded))
	assert.Equal(t, classes, decoded)
}

func TestDocumentKeepsBoundLiterals(t *testing.T) {
	ten := rating.StringBound("10,000")
	ranges := []rating.RatingRange{
		{Min: rating.StringBound("(-1)"), Max: &ten, Rating: 3},
		{Min: rating.NumberBound(12.5), Rating: -1},
	}

	doc, err := encodeDocument(ranges)
	require.NoError(t, err)

	var decoded []rating.RatingRange
	require.NoError(t, decodeDocument(doc, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "(-1)", decoded[0].Min.String())
	assert.Equal(t, "10,000", decoded[0].Max.String())
	assert.Equal(t, "12.5", decoded[1].Min.String())
	assert.Nil(t, decoded[1].Max)
}

func TestDecodeDocument_Empty(t *testing.T) {
	var out []rating.OutputDefinition
	require.NoError(t, decodeDocument("", &out))
	assert.Nil(t, out)
	assert.Error(t, decodeDocument("{", &out))
}
