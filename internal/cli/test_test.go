package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const weightScenario = `name: weight
description: one reading in, one reading out
steps:
  - op: insert
    uri: body/weight
    values: {_metric: 1008, value: 70}
    expect:
      uri: body/1008/1
  - op: query
    uri: body/weight
    projection: [value]
    expect:
      count: 1
`

const failingScenario = `name: failing
steps:
  - op: query
    uri: body/weight
    expect:
      count: 3
`

// writeScenarios lays out <tmp>/scenarios with the given files and returns
// the scenarios directory.
func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	dir := writeScenarios(t, nil)

	out, err := runTestCommand(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	dir := writeScenarios(t, nil)

	out, err := runTestCommand(t, "json", dir)
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandPassingScenarioWithoutGolden(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"weight.yaml": weightScenario})

	out, err := runTestCommand(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ weight")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"weight.yaml": weightScenario})
	goldenPath := filepath.Join(filepath.Dir(dir), "golden", "weight.golden")

	_, err := runTestCommand(t, "text", dir, "--update")
	require.NoError(t, err)
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario": "weight"`)
	assert.Contains(t, string(golden), `"uri": "body/1008/1"`)

	out, err := runTestCommand(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ weight")

	// A stale golden file fails the scenario.
	require.NoError(t, os.WriteFile(goldenPath, []byte("{}\n"), 0o644))
	out, err = runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommandGoldenDirFlag(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"weight.yaml": weightScenario})
	goldenDir := filepath.Join(t.TempDir(), "elsewhere")

	_, err := runTestCommand(t, "text", dir, "--update", "--golden-dir", goldenDir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(goldenDir, "weight.golden"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "golden", "weight.golden"))
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"weight.yaml":  weightScenario,
		"failing.yaml": failingScenario,
	})

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "expect count failed")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommandFailingScenarioJSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"failing.yaml": failingScenario})

	out, err := runTestCommand(t, "json", dir)
	require.Error(t, err)

	var response struct {
		Status string `json:"status"`
		Error  struct {
			Code    string      `json:"code"`
			Details SuiteReport `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "error", response.Status)
	assert.Equal(t, "TEST_FAILED", response.Error.Code)
	assert.Equal(t, 1, response.Error.Details.Failed)
	require.Len(t, response.Error.Details.Scenarios, 1)
	assert.False(t, response.Error.Details.Scenarios[0].Pass)
}

func TestTestCommandPassingScenarioJSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"weight.yaml": weightScenario})

	out, err := runTestCommand(t, "json", dir)
	require.NoError(t, err)

	var response struct {
		Status string      `json:"status"`
		Data   SuiteReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, 1, response.Data.Passed)
	assert.Equal(t, "weight", response.Data.Scenarios[0].Name)
}

func TestTestCommandInvalidFilter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"weight.yaml": weightScenario})

	_, err := runTestCommand(t, "text", dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandFilter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"weight.yaml":  weightScenario,
		"failing.yaml": failingScenario,
	})

	out, err := runTestCommand(t, "text", dir, "--filter", "wei*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
	assert.NotContains(t, out, "failing")
}

func TestTestCommandInvalidScenario(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"broken.yaml": "name: broken\n"})

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandRunsConformanceScenarios(t *testing.T) {
	out, err := runTestCommand(t, "text", "../harness/testdata/scenarios")
	require.NoError(t, err, out)
	assert.Contains(t, out, "0 failed")
}
