package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/harness"
)

const heatScenario = `
name: heat_once
description: "One heat at ten seconds"
sample: 10s
schedule:
  start: "2030-01-01T00:00:00Z"
  duration: 20s
  activities:
    - {id: h, type: heat, offset: 10s, args: {degrees: 5.0}}
assertions:
  - {type: sample, resource: temperature, at: 20s, value: 25}
`

const wrongScenario = `
name: wrong
description: "Expects the wrong temperature"
sample: 10s
schedule:
  start: "2030-01-01T00:00:00Z"
  duration: 20s
assertions:
  - {type: sample, resource: temperature, at: 20s, value: 99}
`

func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "scenarios directory not found")
}

func TestTestCommandRepoScenarios(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ pass")
	assert.Contains(t, out, "✓ heater_conflict")
	assert.Contains(t, out, "Test Summary: 5 passed, 0 failed, 5 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFailure(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"heat.yaml": heatScenario, "wrong.yaml": wrongScenario})

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ heat_once")
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "temperature = 99 at 20s")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"heat.yaml": heatScenario, "wrong.yaml": wrongScenario})

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--filter", "he*")
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandNoScenarios(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandUpdateGolden(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"heat.yaml": heatScenario})

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ heat_once (golden updated)")
	require.FileExists(t, filepath.Join(dir, "golden", "heat.golden"))

	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ heat_once\n")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "heat.golden"), []byte("{}"), 0o644))
	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "results do not match golden file")
}

func TestTestCommandJSON(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"heat.yaml": heatScenario, "wrong.yaml": wrongScenario})

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string              `json:"status"`
		Data   harness.SuiteResult `json:"data"`
		Error  *CLIError           `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "heat_once", resp.Data.Scenarios[0].Name)
	assert.Equal(t, "missing", resp.Data.Scenarios[0].Golden)
}

func TestTestCommandStepQuota(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"cool.yaml": `
name: quota
description: "A sequence cannot start within one batch"
schedule:
  start: "2030-01-01T00:00:00Z"
  duration: 20s
  activities:
    - {id: seq, type: sequence, args: {steps: [{type: heat, args: {degrees: 1.0}}]}}
expect_error: steps_exceeded
assertions:
  - {type: failure_count, count: 0}
`})

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--step-quota", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ quota")

	_, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
}
