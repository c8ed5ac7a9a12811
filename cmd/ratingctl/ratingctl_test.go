package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/rating"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shippedNorm = "../../norms/din50929-3.yaml"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", "../../norms")
	require.NoError(t, err, out)
	assert.Contains(t, out, "din50929-3")
	assert.Contains(t, out, "1 valid, 0 failed")
}

func TestValidate_ReportsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "norm:\n  id: x\n  name: X\n  parameters: []\n  outputConfig:\n    - name: S\n      formula: \"1 +\"\n")

	out, err := run(t, "validate", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "0 valid, 1 failed")
}

func TestValidate_JSON(t *testing.T) {
	out, err := run(t, "validate", "../../norms", "--format", "json")
	require.NoError(t, err)

	var report validateReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Bundles, 1)
	assert.True(t, report.Bundles[0].Configured)
	assert.Equal(t, 12, report.Bundles[0].Parameters)
	assert.Empty(t, report.Errors)
}

func TestEvaluate(t *testing.T) {
	dps := writeFile(t, t.TempDir(), "bores.yaml", `
- name: Bore 1
  values: {Z1: 5, Z2: 60000, Z3: 12, Z4: 7, Z5: 3, Z6: 1, Z7: 1, Z8: 1, Z9: none, Z10: inhomogeneous, Z15: none}
- name: Bore 2
  values: {Z1: 5}
`)

	out, err := run(t, "evaluate", "--norm", shippedNorm, "--datapoints", dps, "--format", "json")
	require.NoError(t, err, out)

	var report evaluateReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, rating.StatusOK, report.Status)
	require.Len(t, report.Results, 2)
	assert.Equal(t, 9.0, report.Results[0].PrimaryScore)
	assert.Equal(t, "Ia", report.Results[0].Classification.Class)
	assert.Len(t, report.Results[1].MissingParameters, 10)
	assert.Contains(t, report.Results[1].FormulaErrors, "B0")

	out, err = run(t, "evaluate", "-n", shippedNorm, "-d", dps)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Norm din50929-3")
	assert.Contains(t, out, "Bore 1")
	assert.Contains(t, out, "failed outputs: B0, B1")
	assert.Contains(t, out, "2 of 2 classified")
}

func TestEvaluate_Errors(t *testing.T) {
	_, err := run(t, "evaluate", "--norm", shippedNorm)
	assert.Error(t, err, "datapoints flag is required")

	dps := writeFile(t, t.TempDir(), "bores.yaml", "- values: {Z1: 5}\n")
	_, err = run(t, "evaluate", "--norm", "missing.yaml", "--datapoints", dps)
	assert.Error(t, err)

	_, err = run(t, "evaluate", "--norm", shippedNorm, "--datapoints", dps, "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestClassify(t *testing.T) {
	out, err := run(t, "classify", "--", "-5")
	require.NoError(t, err)
	assert.Contains(t, out, "II")
	assert.Contains(t, out, "Medium")

	_, err = run(t, "classify", "high")
	assert.Error(t, err)
}
