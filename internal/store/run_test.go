package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
)

func TestWriteRun_ReadBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run := createTestRun("run-1")

	inserted, err := s.WriteRun(ctx, run)
	require.NoError(t, err)
	assert.True(t, inserted)

	summary, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Seq)
	assert.Equal(t, "pass", summary.PlanName)
	assert.Equal(t, run.PlanHash, summary.PlanHash)
	assert.Equal(t, "orbit-demo", summary.Model)
	assert.True(t, run.Results.Start.Equal(summary.Start))
	assert.Equal(t, 2*duration.Second, summary.Horizon)
	assert.False(t, summary.Truncated())
	assert.Empty(t, summary.Error)

	res, err := s.ReadResults(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Results.Samples, res.Samples)
	assert.Equal(t, run.Results.Tasks, res.Tasks)
	assert.Equal(t, run.Results.Failures, res.Failures)
	assert.Equal(t, run.Results.Profiles, res.Profiles)
}

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inserted, err := s.WriteRun(ctx, createTestRun("run-1"))
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = s.WriteRun(ctx, createTestRun("run-1"))
	require.NoError(t, err)
	assert.False(t, inserted)

	var samples int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM samples WHERE run_id = 'run-1'`).Scan(&samples))
	assert.Equal(t, 6, samples)
}

func TestWriteRun_RecordsHaltingError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1")
	run.Results.Horizon = duration.Second - 1
	run.Err = errors.New("commit at 1s: conflicting concurrent effects")

	_, err := s.WriteRun(ctx, run)
	require.NoError(t, err)

	summary, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, summary.Truncated())
	assert.Equal(t, "commit at 1s: conflicting concurrent effects", summary.Error)
}

func TestWriteRun_Rejects(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteRun(ctx, Run{})
	assert.Error(t, err)

	run := createTestRun("")
	_, err = s.WriteRun(ctx, run)
	assert.Error(t, err)

	run = createTestRun("run-1")
	run.Results.Samples["downlinks"] = run.Results.Samples["downlinks"][:1]
	_, err = s.WriteRun(ctx, run)
	assert.Error(t, err)

	// The failed transaction left nothing behind.
	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = s.ReadResults(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListRuns_WriteOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Ids sort differently from write order.
	for _, id := range []string{"c", "a", "b"} {
		_, err := s.WriteRun(ctx, createTestRun(id))
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for i, want := range []string{"c", "a", "b"} {
		assert.Equal(t, want, runs[i].ID)
		assert.Equal(t, int64(i+1), runs[i].Seq)
	}
}

func TestListRuns_Empty(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestRunsForPlan(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := createTestRun("run-1")
	_, err := s.WriteRun(ctx, first)
	require.NoError(t, err)

	other := createTestRun("run-2")
	other.Plan.Duration = 3 * duration.Second
	other.PlanHash = ir.MustPlanHash(other.Plan)
	_, err = s.WriteRun(ctx, other)
	require.NoError(t, err)

	runs, err := s.RunsForPlan(ctx, first.PlanHash, "orbit-demo", "1.0.0")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	runs, err = s.RunsForPlan(ctx, first.PlanHash, "orbit-demo", "2.0.0")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestReadPlan(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run := createTestRun("run-1")

	_, err := s.WriteRun(ctx, run)
	require.NoError(t, err)

	plan, err := s.ReadPlan(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Plan.Name, plan.Name)
	assert.True(t, run.Plan.Start.Equal(plan.Start))
	require.Len(t, plan.Directives, 2)
	assert.Equal(t, run.Plan.Directives[0], plan.Directives[0])
	// Missing arguments read back as an empty object.
	assert.Equal(t, ir.Map{}, plan.Directives[1].Args)

	// The rebuilt plan hashes like the original.
	assert.Equal(t, run.PlanHash, ir.MustPlanHash(plan))
}

func TestReadSamples(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteRun(ctx, createTestRun("run-1"))
	require.NoError(t, err)

	samples, err := s.ReadSamples(ctx, "run-1", "downlinks")
	require.NoError(t, err)
	assert.Equal(t, []Sample{
		{Time: 0, Value: ir.Int(0)},
		{Time: duration.Second, Value: ir.Int(0)},
		{Time: 2 * duration.Second, Value: ir.Int(1)},
	}, samples)

	// Reals stay reals even when integral.
	samples, err = s.ReadSamples(ctx, "run-1", "temperature")
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, ir.Real(25), samples[0].Value)

	samples, err = s.ReadSamples(ctx, "run-1", "unknown")
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestReadTasksAndFailures(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run := createTestRun("run-1")

	_, err := s.WriteRun(ctx, run)
	require.NoError(t, err)

	tasks, err := s.ReadTasks(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Results.Tasks, tasks)

	failures, err := s.ReadFailures(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Results.Failures, failures)
}

func TestCountFailuresByCode(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := range 3 {
		_, err := s.WriteRun(ctx, createTestRun(fmt.Sprintf("run-%d", i)))
		require.NoError(t, err)
	}

	counts, err := s.CountFailuresByCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[engine.RuntimeErrorCode]int{engine.ErrCodeUnknownActivityType: 3}, counts)
}
