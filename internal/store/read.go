package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
)

// RunSummary is one row of the runs table without the results payload.
type RunSummary struct {
	ID             string
	Seq            int64
	PlanName       string
	PlanHash       string
	Model          string
	ModelVersion   string
	Start          time.Time
	Duration       duration.Duration
	Horizon        duration.Duration
	SamplingPeriod duration.Duration
	Points         int
	Error          string
}

// Truncated reports whether the run halted before its duration.
func (r RunSummary) Truncated() bool { return r.Horizon < r.Duration }

// Sample is one stored resource value.
type Sample struct {
	Time  duration.Duration
	Value ir.Value
}

const runColumns = `id, seq, plan_name, plan_hash, model, model_version, start, duration, horizon, sampling_period, points, error`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunSummary, error) {
	var r RunSummary
	var start string
	var total, horizon, period int64
	err := row.Scan(&r.ID, &r.Seq, &r.PlanName, &r.PlanHash, &r.Model, &r.ModelVersion,
		&start, &total, &horizon, &period, &r.Points, &r.Error)
	if err != nil {
		return RunSummary{}, err
	}
	r.Start, err = time.Parse(time.RFC3339Nano, start)
	if err != nil {
		return RunSummary{}, fmt.Errorf("run %s: start: %w", r.ID, err)
	}
	r.Duration = duration.Duration(total)
	r.Horizon = duration.Duration(horizon)
	r.SamplingPeriod = duration.Duration(period)
	return r, nil
}

// ReadRun retrieves a run summary by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns every run in the order it was written.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq ASC, id COLLATE BINARY ASC`)
}

// RunsForPlan returns the runs of one plan against one model version, in
// the order they were written.
func (s *Store) RunsForPlan(ctx context.Context, planHash, model, modelVersion string) ([]RunSummary, error) {
	return s.queryRuns(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE plan_hash = ? AND model = ? AND model_version = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, planHash, model, modelVersion)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadResults decodes the full results of a run.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadResults(ctx context.Context, id string) (*engine.Results, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT results FROM runs WHERE id = ?`, id).Scan(&data)
	if err != nil {
		return nil, err
	}
	v, err := unmarshalValue(data)
	if err != nil {
		return nil, fmt.Errorf("read results %s: %w", id, err)
	}
	res, err := engine.ResultsFromValue(v)
	if err != nil {
		return nil, fmt.Errorf("read results %s: %w", id, err)
	}
	return res, nil
}

// ReadPlan rebuilds the plan a run was made from.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadPlan(ctx context.Context, id string) (ir.Plan, error) {
	summary, err := s.ReadRun(ctx, id)
	if err != nil {
		return ir.Plan{}, err
	}
	plan := ir.Plan{
		Name:     summary.PlanName,
		Start:    summary.Start,
		Duration: summary.Duration,
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, offset_us, activity_type, args
		FROM directives
		WHERE run_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return ir.Plan{}, fmt.Errorf("query directives: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d ir.Directive
		var offset int64
		var args string
		if err := rows.Scan(&d.ID, &offset, &d.Type, &args); err != nil {
			return ir.Plan{}, fmt.Errorf("scan directive: %w", err)
		}
		d.Offset = duration.Duration(offset)
		if d.Args, err = unmarshalArgs(args); err != nil {
			return ir.Plan{}, fmt.Errorf("directive %s: %w", d.ID, err)
		}
		plan.Directives = append(plan.Directives, d)
	}
	if err := rows.Err(); err != nil {
		return ir.Plan{}, fmt.Errorf("iterate directives: %w", err)
	}
	return plan, nil
}

// ReadSamples returns the stored samples of one resource, in time order.
// Returns an empty slice for an unknown run or resource.
func (s *Store) ReadSamples(ctx context.Context, runID, resource string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time_us, value
		FROM samples
		WHERE run_id = ? AND resource = ?
		ORDER BY idx ASC
	`, runID, resource)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var at int64
		var value string
		if err := rows.Scan(&at, &value); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		v, err := unmarshalValue(value)
		if err != nil {
			return nil, err
		}
		samples = append(samples, Sample{Time: duration.Duration(at), Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}

// ReadTasks returns the task records of a run in creation order.
func (s *Store) ReadTasks(ctx context.Context, runID string) ([]engine.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, activity_type, directive, status, started_us, finished_us
		FROM tasks
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []engine.TaskRecord{}
	for rows.Next() {
		var t engine.TaskRecord
		var status string
		var started, finished int64
		if err := rows.Scan(&t.Name, &t.ActivityType, &t.Directive, &status, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if t.Status, err = engine.ParseTaskStatus(status); err != nil {
			return nil, err
		}
		t.Started = duration.Duration(started)
		t.Finished = duration.Duration(finished)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// ReadFailures returns the failures of a run in the order they were
// reported.
func (s *Store) ReadFailures(ctx context.Context, runID string) ([]engine.Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT directive, task, activity_type, code, time_us, messages
		FROM failures
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	failures := []engine.Failure{}
	for rows.Next() {
		var f engine.Failure
		var code, messages string
		var at int64
		if err := rows.Scan(&f.Directive, &f.Task, &f.ActivityType, &code, &at, &messages); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.Code = engine.RuntimeErrorCode(code)
		f.Time = duration.Duration(at)
		if f.Messages, err = unmarshalMessages(messages); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return failures, nil
}

// CountFailuresByCode aggregates failures across every stored run.
func (s *Store) CountFailuresByCode(ctx context.Context) (map[engine.RuntimeErrorCode]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, COUNT(*) FROM failures GROUP BY code`)
	if err != nil {
		return nil, fmt.Errorf("count failures: %w", err)
	}
	defer rows.Close()

	counts := make(map[engine.RuntimeErrorCode]int)
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("scan failure count: %w", err)
		}
		counts[engine.RuntimeErrorCode(code)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure counts: %w", err)
	}
	return counts, nil
}

var _ rowScanner = (*sql.Row)(nil)
