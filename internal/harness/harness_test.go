package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
	"github.com/roach88/orbit/internal/testutil"
)

const scenariosDir = "../../testdata/scenarios"

func heaterSchedule(activities ...ScheduledActivity) *Schedule {
	return &Schedule{
		Start:      "2030-01-01T00:00:00Z",
		Duration:   Duration(20 * sec),
		Activities: activities,
	}
}

func TestRun_Pass(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenariosDir, "pass.yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.NoError(t, result.Halted)

	require.NotNil(t, result.Results)
	assert.Equal(t, DefaultRunID, result.Results.RunID)
	assert.Len(t, result.Results.Timestamps, 11)
}

// TestRun_RepoScenarios runs every scenario shipped in testdata.
func TestRun_RepoScenarios(t *testing.T) {
	files, err := FindScenarios(scenariosDir, "")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_InlineSchedule(t *testing.T) {
	scenario := &Scenario{
		Name:        "inline",
		Description: "Two heats commute",
		Sample:      at(10 * sec),
		Schedule: heaterSchedule(
			ScheduledActivity{ID: "h1", Type: "heat", Offset: Duration(10 * sec), Args: map[string]any{"degrees": 5.0}},
			ScheduledActivity{Type: "heat", Offset: Duration(10 * sec), Args: map[string]any{"degrees": 3}},
		),
		Assertions: []Assertion{
			{Type: AssertSample, Resource: "temperature", At: at(20 * sec), Value: 28},
			{Type: AssertTask, Task: "h1", Status: "completed"},
			{Type: AssertTask, Task: "heat-2", Status: "completed", Started: at(10 * sec)},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []ir.Value{ir.Real(20), ir.Real(28), ir.Real(28)}, result.Results.Samples["temperature"])
}

func TestRun_FailedAssertion(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong",
		Description: "Wrong expectation",
		Sample:      at(10 * sec),
		Schedule: heaterSchedule(
			ScheduledActivity{ID: "h", Type: "heat", Offset: Duration(10 * sec), Args: map[string]any{"degrees": 5.0}},
		),
		Assertions: []Assertion{
			{Type: AssertSample, Resource: "temperature", At: at(20 * sec), Value: 30},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "temperature = 30 at 20s")
	assert.Contains(t, result.Errors[0], "temperature = 25.0")
}

func TestRun_ExpectError(t *testing.T) {
	conflict := heaterSchedule(
		ScheduledActivity{ID: "h", Type: "heat", Offset: Duration(10 * sec), Args: map[string]any{"degrees": 5.0}},
		ScheduledActivity{ID: "c", Type: "cool", Offset: Duration(10 * sec), Args: map[string]any{"factor": 0.5}},
	)

	t.Run("expected conflict", func(t *testing.T) {
		result, err := Run(context.Background(), &Scenario{
			Name:        "conflict",
			Description: "Heat and cool conflict",
			Sample:      at(5 * sec),
			Schedule:    conflict,
			ExpectError: ExpectEffectConflict,
			Assertions: []Assertion{
				{Type: AssertHorizon, At: at(10*sec - 1)},
			},
		})
		require.NoError(t, err)
		assert.True(t, result.Pass, "errors: %v", result.Errors)
		require.Error(t, result.Halted)
	})

	t.Run("unexpected conflict", func(t *testing.T) {
		result, err := Run(context.Background(), &Scenario{
			Name:        "conflict",
			Description: "Heat and cool conflict",
			Schedule:    conflict,
			Assertions:  []Assertion{{Type: AssertFailureCount, Count: ptr(0)}},
		})
		require.NoError(t, err)
		assert.False(t, result.Pass)
		require.NotEmpty(t, result.Errors)
		assert.Contains(t, result.Errors[0], "simulation halted unexpectedly")
	})

	t.Run("expected conflict that never happens", func(t *testing.T) {
		result, err := Run(context.Background(), &Scenario{
			Name:        "calm",
			Description: "No conflict",
			Schedule: heaterSchedule(
				ScheduledActivity{ID: "h", Type: "heat", Offset: Duration(10 * sec), Args: map[string]any{"degrees": 5.0}},
			),
			ExpectError: ExpectEffectConflict,
			Assertions:  []Assertion{{Type: AssertFailureCount, Count: ptr(0)}},
		})
		require.NoError(t, err)
		assert.False(t, result.Pass)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "expected simulation to halt with effect_conflict, got no error", result.Errors[0])
	})
}

func TestRun_StepsExceeded(t *testing.T) {
	scenario := &Scenario{
		Name:        "quota",
		Description: "A sequence needs more than one batch at its start",
		Schedule: heaterSchedule(ScheduledActivity{ID: "seq", Type: "sequence", Args: map[string]any{
			"steps": []any{map[string]any{"type": "heat", "args": map[string]any{"degrees": 1.0}}},
		}}),
		ExpectError: ExpectStepsExceeded,
		Assertions:  []Assertion{{Type: AssertFailureCount, Count: ptr(0)}},
	}

	result, err := Run(context.Background(), scenario, WithStepQuota(1))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.True(t, engine.IsStepsExceededError(result.Halted))
}

func TestRun_TaskFailure(t *testing.T) {
	scenario := &Scenario{
		Name:        "counter",
		Description: "A failing activity is reported, the run continues",
		Model:       "counter",
		Sample:      at(sec),
		Schedule: &Schedule{
			Start:    "2030-01-01T00:00:00Z",
			Duration: Duration(3 * sec),
			Activities: []ScheduledActivity{
				{ID: "a", Type: "bump", Args: map[string]any{"by": 1}},
				{ID: "b", Type: "fail", Offset: Duration(sec), Args: map[string]any{"message": "boom"}},
				{ID: "c", Type: "bump", Offset: Duration(2 * sec), Args: map[string]any{"by": 2}},
			},
		},
		Assertions: []Assertion{
			{Type: AssertFailure, Code: "TASK_FAILED", Directive: "b"},
			{Type: AssertFailureCount, Count: ptr(1)},
			{Type: AssertTask, Task: "b", Status: "failed", Finished: at(sec)},
			{Type: AssertSample, Resource: "count", At: at(3 * sec), Value: 3},
		},
	}

	result, err := Run(context.Background(), scenario, WithModel(testutil.CounterModel()))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UnknownActivityType(t *testing.T) {
	scenario := &Scenario{
		Name:        "unknown",
		Description: "Unknown types fail their directive only",
		Schedule: heaterSchedule(
			ScheduledActivity{ID: "w", Type: "warp"},
			ScheduledActivity{ID: "h", Type: "heat", Args: map[string]any{"degrees": 1.0}},
		),
		Assertions: []Assertion{
			{Type: AssertFailure, Code: string(engine.ErrCodeUnknownActivityType), Directive: "w"},
			{Type: AssertTask, Task: "h", Status: "completed"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ModelMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "Written for another model",
		Model:       "counter",
		Schedule:    heaterSchedule(),
		Assertions:  []Assertion{{Type: AssertFailureCount, Count: ptr(0)}},
	}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `written for model "counter", harness runs "orbit-demo"`)
}

func TestRun_PlanFile(t *testing.T) {
	dir := t.TempDir()
	writePlan(t, dir, "heat.cue")
	path := writeScenario(t, dir, `
name: plan_file
description: "Plan compiled from CUE"
plan: plans/heat.cue
plan_name: p
sample: 10s
assertions:
  - {type: sample, resource: temperature, at: 10s, value: 25}
  - {type: task, task: h, status: completed, started: 10s}
  - {type: horizon, at: 1m}
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_PlanDoesNotCompile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte(`plan: p: {start: "2030-01-01T00:00:00Z"}`), 0o644))

	scenario := &Scenario{
		Name:        "bad_plan",
		Description: "Plan without a duration",
		Plan:        filepath.Join(dir, "bad.cue"),
		Assertions:  []Assertion{{Type: AssertFailureCount, Count: ptr(0)}},
	}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario "bad_plan"`)
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scenario := &Scenario{
		Name:        "canceled",
		Description: "Context already done",
		Schedule: heaterSchedule(
			ScheduledActivity{ID: "h", Type: "heat", Args: map[string]any{"degrees": 1.0}},
		),
		Assertions: []Assertion{{Type: AssertFailureCount, Count: ptr(0)}},
	}

	_, err := Run(ctx, scenario)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenariosDir, "pass.yaml"))
	require.NoError(t, err)

	var snapshots [][]byte
	for range 3 {
		result, err := Run(context.Background(), scenario)
		require.NoError(t, err)
		data, err := Snapshot(scenario.Name, result)
		require.NoError(t, err)
		snapshots = append(snapshots, data)
	}

	assert.Equal(t, snapshots[0], snapshots[1])
	assert.Equal(t, snapshots[0], snapshots[2])
}

func TestConvertArgs(t *testing.T) {
	args, err := convertArgs(map[string]any{
		"n":     3,
		"x":     1.5,
		"s":     "on",
		"b":     true,
		"steps": []any{map[string]any{"type": "heat"}},
	})
	require.NoError(t, err)
	assert.Equal(t, ir.Map{
		"n":     ir.Int(3),
		"x":     ir.Real(1.5),
		"s":     ir.String("on"),
		"b":     ir.Bool(true),
		"steps": ir.List{ir.Map{"type": ir.String("heat")}},
	}, args)

	args, err = convertArgs(nil)
	require.NoError(t, err)
	assert.Nil(t, args)
}
