package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordRuns simulates the pass plan and the halting cool_down plan into a
// fresh database.
func recordRuns(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "runs.db")

	_, err := execute(t, newSimulateCommand(simulateCmd("text", "run-1")), passPlan, "--db", db)
	require.NoError(t, err)
	_, err = execute(t, newSimulateCommand(simulateCmd("text", "run-2")),
		thermalPlan, "--plan", "cool_down", "--step-quota", "1", "--db", db)
	require.Error(t, err)

	return db
}

func TestShowRun(t *testing.T) {
	db := recordRuns(t)

	out, err := execute(t, NewShowCommand(&RootOptions{Format: "text"}), "run-1", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-1")
	assert.Contains(t, out, "plan:     pass (")
	assert.Contains(t, out, "horizon:  10m0s of 10m0s")
	assert.Contains(t, out, "obs/slew-1")
	assert.NotContains(t, out, "halted")
}

func TestShowRunJSON(t *testing.T) {
	db := recordRuns(t)

	out, err := execute(t, NewShowCommand(&RootOptions{Format: "json"}), "run-1", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   StoredRun `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "pass", resp.Data.Plan)
	assert.Equal(t, "orbit-demo", resp.Data.Model)
	assert.Equal(t, 11, resp.Data.Points)
	assert.Empty(t, resp.Data.Failures)

	byName := map[string]StoredTask{}
	for _, task := range resp.Data.Tasks {
		byName[task.Name] = task
	}
	require.Contains(t, byName, "obs")
	assert.Equal(t, "observe", byName["obs"].Type)
	assert.Equal(t, "completed", byName["obs"].Status)
	assert.Equal(t, "1m0s", byName["obs"].Started)
	assert.Equal(t, "3m10s", byName["obs"].Finished)
	assert.Equal(t, "obs", byName["obs/slew-1"].Directive)
}

func TestShowHaltedRun(t *testing.T) {
	db := recordRuns(t)

	out, err := execute(t, NewShowCommand(&RootOptions{Format: "text"}), "run-2", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "plan:     cool_down")
	assert.Contains(t, out, "halted:")
}

func TestShowList(t *testing.T) {
	db := recordRuns(t)

	out, err := execute(t, NewShowCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "2 run(s):")
	assert.Contains(t, out, "✓ run-1 pass")
	assert.Contains(t, out, "✗ run-2 cool_down")

	out, err = execute(t, NewShowCommand(&RootOptions{Format: "json"}), "--db", db)
	require.NoError(t, err)

	var resp struct {
		Data RunList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []RunListEntry{
		{RunID: "run-1", Plan: "pass", Horizon: "10m0s", Halted: false},
		{RunID: "run-2", Plan: "cool_down", Horizon: resp.Data.Runs[1].Horizon, Halted: true},
	}, resp.Data.Runs)
}

func TestShowEmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, NewShowCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded")
}

func TestShowRunNotFound(t *testing.T) {
	db := recordRuns(t)

	out, err := execute(t, NewShowCommand(&RootOptions{Format: "text"}), "run-9", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E009]")
	assert.Contains(t, out, `run "run-9" not found`)
}

func TestShowRequiresDatabase(t *testing.T) {
	_, err := execute(t, NewShowCommand(&RootOptions{Format: "text"}), "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}

func TestShowRunDirectivesAndSamples(t *testing.T) {
	db := recordRuns(t)

	out, err := execute(t, NewShowCommand(&RootOptions{Format: "json"}), "run-1", "--db", db, "--resource", "battery")
	require.NoError(t, err)

	var resp struct {
		Data StoredRun `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	byID := map[string]StoredDirective{}
	for _, d := range resp.Data.Directives {
		byID[d.ID] = d
	}
	require.Contains(t, byID, "obs")
	assert.Equal(t, "observe", byID["obs"].Type)
	assert.Equal(t, "1m0s", byID["obs"].Offset)

	require.NotNil(t, resp.Data.Samples)
	assert.Equal(t, "battery", resp.Data.Samples.Resource)
	require.Len(t, resp.Data.Samples.Points, 11)
	assert.Equal(t, "0s", resp.Data.Samples.Points[0].Time)
	assert.Equal(t, "10m0s", resp.Data.Samples.Points[10].Time)

	out, err = execute(t, NewShowCommand(&RootOptions{Format: "text"}), "run-1", "--db", db, "--resource", "battery")
	require.NoError(t, err)
	assert.Contains(t, out, "Directives (")
	assert.Contains(t, out, "Samples of battery (11):")
}

func TestShowPlanHash(t *testing.T) {
	db := recordRuns(t)

	out, err := execute(t, NewShowCommand(&RootOptions{Format: "json"}), "run-1", "--db", db)
	require.NoError(t, err)
	var run struct {
		Data StoredRun `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	require.NotEmpty(t, run.Data.PlanHash)

	out, err = execute(t, NewShowCommand(&RootOptions{Format: "json"}), "--db", db, "--plan-hash", run.Data.PlanHash)
	require.NoError(t, err)
	var list struct {
		Data RunList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Data.Runs, 1)
	assert.Equal(t, "run-1", list.Data.Runs[0].RunID)

	out, err = execute(t, NewShowCommand(&RootOptions{Format: "text"}), "--db", db, "--plan-hash", "0000")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded")
}

func TestShowFailureCodes(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	path := writeCUE(t, `plan: p: {
	start:    "2030-01-01T00:00:00Z"
	duration: "30s"
	activities: [{
		id:   "seq"
		type: "sequence"
		args: steps: [{type: "heat", args: degrees: 5.0}, {after: "5s", type: "warp"}]
	}]
}
`)
	_, err := execute(t, newSimulateCommand(simulateCmd("text", "run-1")), path, "--sample", "10s", "--db", db)
	require.NoError(t, err)

	out, err := execute(t, NewShowCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Failures by code:")
	assert.Contains(t, out, "UNKNOWN_ACTIVITY_TYPE")

	out, err = execute(t, NewShowCommand(&RootOptions{Format: "json"}), "--db", db)
	require.NoError(t, err)
	var resp struct {
		Data RunList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, map[string]int{"UNKNOWN_ACTIVITY_TYPE": 1}, resp.Data.FailureCodes)
}

func TestShowFlagErrors(t *testing.T) {
	db := recordRuns(t)

	tests := []struct {
		name    string
		args    []string
		wantOut string
	}{
		{"resource without run", []string{"--db", db, "--resource", "battery"}, "--resource requires a run id"},
		{"plan hash with run", []string{"run-1", "--db", db, "--plan-hash", "abc"}, "--plan-hash lists runs and excludes a run id"},
		{"no samples", []string{"run-1", "--db", db, "--resource", "fuel"}, `no samples of "fuel" in run "run-1"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewShowCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [E001]")
			assert.Contains(t, out, tt.wantOut)
		})
	}
}
