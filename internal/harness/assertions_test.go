package harness

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
	"github.com/roach88/orbit/internal/resource"
)

const sec = duration.Second

func at(d duration.Duration) *Duration {
	v := Duration(d)
	return &v
}

func ptr[T any](v T) *T { return &v }

// testResults is a 20s run sampled every 10s: "level" steps 1, 5, 9 and
// "mode" switches from off to on at 10s.
func testResults() *engine.Results {
	return &engine.Results{
		RunID:          "r",
		Model:          "m",
		Start:          time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		Duration:       20 * sec,
		Horizon:        20 * sec,
		SamplingPeriod: 10 * sec,
		Timestamps:     []duration.Duration{0, 10 * sec, 20 * sec},
		Samples: map[string][]ir.Value{
			"level": {ir.Real(1), ir.Real(5), ir.Real(9)},
			"mode":  {ir.String("off"), ir.String("on"), ir.String("on")},
		},
		Profiles: map[string]resource.Profile{
			"level": {Name: "level", End: 20 * sec, Segments: []resource.Segment{
				{Start: 0, Dynamics: resource.Discrete{Value: ir.Real(1)}},
				{Start: 10 * sec, Dynamics: resource.Discrete{Value: ir.Real(5)}},
				{Start: 20 * sec, Dynamics: resource.Discrete{Value: ir.Real(9)}},
			}},
			"mode": {Name: "mode", End: 20 * sec, Segments: []resource.Segment{
				{Start: 0, Dynamics: resource.Discrete{Value: ir.String("off")}},
				{Start: 10 * sec, Dynamics: resource.Discrete{Value: ir.String("on")}},
			}},
		},
		Tasks: []engine.TaskRecord{
			{Name: "a", ActivityType: "heat", Directive: "a", Status: engine.StatusCompleted, Started: 0, Finished: 10 * sec},
			{Name: "b", ActivityType: "cool", Directive: "b", Status: engine.StatusFailed, Started: 10 * sec, Finished: 10 * sec},
		},
		Failures: []engine.Failure{
			{Directive: "b", Task: "b", ActivityType: "cool", Code: engine.ErrCodeTaskFailed, Time: 10 * sec, Messages: []string{"too cold"}},
		},
		Points: 3,
	}
}

func TestAssertSample_Match(t *testing.T) {
	res := testResults()

	require.NoError(t, assertSample(res, Assertion{Type: AssertSample, Resource: "level", At: at(10 * sec), Value: 5}))
	require.NoError(t, assertSample(res, Assertion{Type: AssertSample, Resource: "level", At: at(20 * sec), Value: 9.0}))
	require.NoError(t, assertSample(res, Assertion{Type: AssertSample, Resource: "mode", At: at(0), Value: "off"}))
}

func TestAssertSample_Mismatch(t *testing.T) {
	err := assertSample(testResults(), Assertion{Type: AssertSample, Resource: "level", At: at(10 * sec), Value: 6})
	require.Error(t, err)

	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertSample, ae.Type)
	assert.Equal(t, "level = 6 at 10s", ae.Expected)
	assert.Equal(t, "level = 5.0", ae.Actual)
	assert.Len(t, ae.Context, 3)
}

func TestAssertSample_NoSuchResource(t *testing.T) {
	err := assertSample(testResults(), Assertion{Type: AssertSample, Resource: "fuel", At: at(0), Value: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "have level, mode")
}

func TestAssertSample_NoSampleAtInstant(t *testing.T) {
	err := assertSample(testResults(), Assertion{Type: AssertSample, Resource: "level", At: at(5 * sec), Value: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sample at 5s")
}

func TestAssertSample_TypeMismatch(t *testing.T) {
	err := assertSample(testResults(), Assertion{Type: AssertSample, Resource: "mode", At: at(0), Value: 0})
	require.Error(t, err)
}

func TestAssertTask(t *testing.T) {
	res := testResults()

	require.NoError(t, assertTask(res, Assertion{Type: AssertTask, Task: "a", Status: "completed"}))
	require.NoError(t, assertTask(res, Assertion{Type: AssertTask, Task: "a", Status: "completed", Started: at(0), Finished: at(10 * sec)}))
	require.NoError(t, assertTask(res, Assertion{Type: AssertTask, Task: "b", Status: "failed"}))

	err := assertTask(res, Assertion{Type: AssertTask, Task: "b", Status: "completed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task b failed")

	err = assertTask(res, Assertion{Type: AssertTask, Task: "a", Status: "completed", Finished: at(5 * sec)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finished at 10s")

	err = assertTask(res, Assertion{Type: AssertTask, Task: "a", Status: "completed", Started: at(sec)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "started at 0s")
}

func TestAssertTask_NotFound(t *testing.T) {
	err := assertTask(testResults(), Assertion{Type: AssertTask, Task: "z", Status: "completed"})
	require.Error(t, err)

	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "not found", ae.Actual)
	assert.Equal(t, []string{"a", "b"}, ae.Context)
}

func TestAssertTask_UnknownStatus(t *testing.T) {
	err := assertTask(testResults(), Assertion{Type: AssertTask, Task: "a", Status: "done"})
	require.Error(t, err)

	var ae *AssertionError
	assert.False(t, errors.As(err, &ae), "an unknown status is a scenario error, not a failed assertion")
}

func TestAssertFailure(t *testing.T) {
	res := testResults()

	require.NoError(t, assertFailure(res, Assertion{Type: AssertFailure, Code: "TASK_FAILED"}))
	require.NoError(t, assertFailure(res, Assertion{Type: AssertFailure, Code: "TASK_FAILED", Directive: "b"}))

	err := assertFailure(res, Assertion{Type: AssertFailure, Code: "TASK_FAILED", Directive: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure TASK_FAILED for a")
	assert.Contains(t, err.Error(), "TASK_FAILED b at 10s: too cold")

	err = assertFailure(res, Assertion{Type: AssertFailure, Code: "INVALID_PARAMETERS"})
	require.Error(t, err)
}

func TestAssertFailureCount(t *testing.T) {
	res := testResults()

	require.NoError(t, assertFailureCount(res, Assertion{Type: AssertFailureCount, Count: ptr(1)}))

	err := assertFailureCount(res, Assertion{Type: AssertFailureCount, Count: ptr(0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 0 failures")
	assert.Contains(t, err.Error(), "Actual: 1 failures")
}

func TestAssertWindows(t *testing.T) {
	res := testResults()

	tests := []struct {
		name      string
		assertion Assertion
		pass      bool
	}{
		{
			name: "min",
			assertion: Assertion{Resource: "level", Min: ptr(4.0), Windows: [][]Duration{
				{Duration(10 * sec), Duration(20 * sec)},
			}},
			pass: true,
		},
		{
			name: "max",
			assertion: Assertion{Resource: "level", Max: ptr(4.0), Windows: [][]Duration{
				{0, Duration(10*sec - 1)},
			}},
			pass: true,
		},
		{
			name: "band",
			assertion: Assertion{Resource: "level", Min: ptr(2.0), Max: ptr(6.0), Windows: [][]Duration{
				{Duration(10 * sec), Duration(20*sec - 1)},
			}},
			pass: true,
		},
		{
			name: "equals",
			assertion: Assertion{Resource: "mode", Equals: "off", Windows: [][]Duration{
				{0, Duration(10*sec - 1)},
			}},
			pass: true,
		},
		{
			name:      "never",
			assertion: Assertion{Resource: "level", Min: ptr(100.0)},
			pass:      true,
		},
		{
			name: "wrong windows",
			assertion: Assertion{Resource: "level", Min: ptr(4.0), Windows: [][]Duration{
				{Duration(5 * sec), Duration(20 * sec)},
			}},
			pass: false,
		},
		{
			name:      "numeric condition on discrete strings",
			assertion: Assertion{Resource: "mode", Min: ptr(0.0)},
			pass:      false,
		},
		{
			name:      "unknown resource",
			assertion: Assertion{Resource: "fuel", Min: ptr(0.0)},
			pass:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertWindows
			err := assertWindows(res, tt.assertion)
			if tt.pass {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}

func TestAssertWindows_EmptyBand(t *testing.T) {
	err := assertWindows(testResults(), Assertion{Type: AssertWindows, Resource: "level", Min: ptr(5.0), Max: ptr(1.0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max")
}

func TestAssertHorizon(t *testing.T) {
	res := testResults()

	require.NoError(t, assertHorizon(res, Assertion{Type: AssertHorizon, At: at(20 * sec)}))

	err := assertHorizon(res, Assertion{Type: AssertHorizon, At: at(10 * sec)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "horizon 20s")
}

func TestValuesMatch(t *testing.T) {
	tests := []struct {
		name string
		want ir.Value
		got  ir.Value
		ok   bool
	}{
		{"int against real", ir.Int(36000), ir.Real(36000), true},
		{"real within tolerance", ir.Real(0.3), ir.Real(0.1 + 0.2), true},
		{"different reals", ir.Real(1), ir.Real(1.001), false},
		{"strings", ir.String("on"), ir.String("on"), true},
		{"different strings", ir.String("on"), ir.String("off"), false},
		{"string against number", ir.String("1"), ir.Int(1), false},
		{"bools", ir.Bool(true), ir.Bool(true), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, valuesMatch(tt.want, tt.got))
		})
	}
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	errs := EvaluateAssertions(testResults(), []Assertion{
		{Type: AssertSample, Resource: "mode", At: at(10 * sec), Value: "on"},
		{Type: AssertTask, Task: "a", Status: "completed"},
		{Type: AssertFailure, Code: "TASK_FAILED"},
		{Type: AssertFailureCount, Count: ptr(1)},
		{Type: AssertWindows, Resource: "mode", Equals: "on", Windows: [][]Duration{{Duration(10 * sec), Duration(20 * sec)}}},
		{Type: AssertHorizon, At: at(20 * sec)},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_SomeFail(t *testing.T) {
	errs := EvaluateAssertions(testResults(), []Assertion{
		{Type: AssertSample, Resource: "mode", At: at(10 * sec), Value: "off"},
		{Type: AssertTask, Task: "a", Status: "completed"},
		{Type: AssertFailureCount, Count: ptr(0)},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "sample")
	assert.Contains(t, errs[1], "failure_count")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(testResults(), []Assertion{{Type: "trace_contains"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `assertion[0]: unknown assertion type "trace_contains"`)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTask,
		Expected: "task a completed",
		Actual:   "task a failed",
		Context:  []string{"a", "b"},
	}

	want := "Assertion failed: task\n" +
		"  Expected: task a completed\n" +
		"  Actual: task a failed\n" +
		"\nContext:\n" +
		"  a\n" +
		"  b\n"
	assert.Equal(t, want, err.Error())
}
