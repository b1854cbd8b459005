package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
	"github.com/roach88/orbit/internal/resource"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a small but complete run with one failure.
func createTestRun(id string) Run {
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	plan := ir.Plan{
		Name:     "pass",
		Start:    start,
		Duration: 2 * duration.Second,
		Directives: []ir.Directive{
			{ID: "heat", Type: "heat", Args: ir.Map{"degrees": ir.Real(5)}},
			{ID: "bad", Offset: duration.Second, Type: "warp"},
		},
	}
	return Run{
		Plan:     plan,
		PlanHash: ir.MustPlanHash(plan),
		Results: &engine.Results{
			RunID:          id,
			Model:          "orbit-demo",
			ModelVersion:   "1.0.0",
			Start:          start,
			Duration:       2 * duration.Second,
			Horizon:        2 * duration.Second,
			SamplingPeriod: duration.Second,
			Timestamps:     []duration.Duration{0, duration.Second, 2 * duration.Second},
			Samples: map[string][]ir.Value{
				"temperature": {ir.Real(25), ir.Real(25), ir.Real(25)},
				"downlinks":   {ir.Int(0), ir.Int(0), ir.Int(1)},
			},
			Profiles: map[string]resource.Profile{
				"temperature": {
					Name:     "temperature",
					Segments: []resource.Segment{{Start: 0, Dynamics: resource.Constant(25)}},
					End:      2 * duration.Second,
				},
			},
			Tasks: []engine.TaskRecord{
				{Name: "heat", ActivityType: "heat", Directive: "heat", Status: engine.StatusCompleted, Started: 0, Finished: 0},
			},
			Failures: []engine.Failure{
				{
					Directive:    "bad",
					Task:         "bad",
					ActivityType: "warp",
					Code:         engine.ErrCodeUnknownActivityType,
					Time:         duration.Second,
					Messages:     []string{`no activity type "warp" is registered`},
				},
			},
			Points: 1,
		},
	}
}
