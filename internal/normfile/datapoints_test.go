package normfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatapoints(t *testing.T) {
	data := []byte(`
- name: Bore 1
  values:
    Z1: 5
    Z2: 60000
    Z4: 7.5
    Z9: none
    LOC:
- id: b-2
  name: Bore 2
  values: {Z1: impurities}
`)
	dps, err := ParseDatapoints("bores.yaml", data)
	require.NoError(t, err)
	require.Len(t, dps, 2)

	assert.Equal(t, "1", dps[0].ID)
	assert.Equal(t, 1, dps[0].SequentialID)
	assert.Equal(t, map[string]string{"Z1": "5", "Z2": "60000", "Z4": "7.5", "Z9": "none", "LOC": ""}, dps[0].Values)

	assert.Equal(t, "b-2", dps[1].ID)
	assert.Equal(t, 2, dps[1].SequentialID)
	assert.Equal(t, "impurities", dps[1].Values["Z1"])
}

func TestParseDatapoints_JSON(t *testing.T) {
	dps, err := ParseDatapoints("bores.json", []byte(`[{"name":"a","values":{"Z1":"12","Z3":20}}]`))
	require.NoError(t, err)
	require.Len(t, dps, 1)
	assert.Equal(t, map[string]string{"Z1": "12", "Z3": "20"}, dps[0].Values)
}

func TestParseDatapoints_Errors(t *testing.T) {
	_, err := ParseDatapoints("bad.yaml", []byte(`[{"values":{"Z1":[1,2]}}]`))
	assert.ErrorContains(t, err, "must be a scalar")

	_, err = ParseDatapoints("bad.yaml", []byte(`values: 1`))
	assert.Error(t, err)

	_, err = LoadDatapoints("does-not-exist.yaml")
	assert.Error(t, err)
}
