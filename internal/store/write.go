package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
)

// Run is one simulation as persisted: the plan that was run, its content
// hash, the results and the halting error, if any.
type Run struct {
	Plan     ir.Plan
	PlanHash string
	Results  *engine.Results
	Err      error
}

// WriteRun inserts a run and all of its rows in one transaction.
// Returns inserted=false if a run with the same id is already stored; the
// stored run is left untouched.
//
// The run is assigned the next seq, which fixes its position in ListRuns.
func (s *Store) WriteRun(ctx context.Context, run Run) (inserted bool, err error) {
	res := run.Results
	if res == nil {
		return false, fmt.Errorf("write run: no results")
	}
	if res.RunID == "" {
		return false, fmt.Errorf("write run: results have no run id")
	}

	resultsJSON, err := marshalValue(res.ToValue())
	if err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}
	errText := ""
	if run.Err != nil {
		errText = run.Err.Error()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return false, fmt.Errorf("write run: next seq: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, plan_name, plan_hash, model, model_version, start, duration, horizon, sampling_period, points, error, results)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		res.RunID,
		seq,
		run.Plan.Name,
		run.PlanHash,
		res.Model,
		res.ModelVersion,
		res.Start.UTC().Format(time.RFC3339Nano),
		int64(res.Duration),
		int64(res.Horizon),
		int64(res.SamplingPeriod),
		res.Points,
		errText,
		resultsJSON,
	)
	if err != nil {
		return false, fmt.Errorf("write run: insert: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write run: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if err := writeDirectives(ctx, tx, res.RunID, run.Plan.Directives); err != nil {
		return false, err
	}
	if err := writeSamples(ctx, tx, res); err != nil {
		return false, err
	}
	if err := writeTasks(ctx, tx, res.RunID, res.Tasks); err != nil {
		return false, err
	}
	if err := writeFailures(ctx, tx, res.RunID, res.Failures); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write run: commit: %w", err)
	}
	return true, nil
}

func writeDirectives(ctx context.Context, tx *sql.Tx, runID string, directives []ir.Directive) error {
	for i, d := range directives {
		args, err := marshalArgs(d.Args)
		if err != nil {
			return fmt.Errorf("write directive %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO directives (run_id, position, id, offset_us, activity_type, args)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, i, d.ID, int64(d.Offset), d.Type, args)
		if err != nil {
			return fmt.Errorf("write directive %d: %w", i, err)
		}
	}
	return nil
}

// writeSamples inserts resources in name order so the statement sequence
// is the same for equal results.
func writeSamples(ctx context.Context, tx *sql.Tx, res *engine.Results) error {
	names := make([]string, 0, len(res.Samples))
	for name := range res.Samples {
		names = append(names, name)
	}
	slices.Sort(names)

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, resource, idx, time_us, value)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write samples: prepare: %w", err)
	}
	defer stmt.Close()

	for _, name := range names {
		values := res.Samples[name]
		if len(values) != len(res.Timestamps) {
			return fmt.Errorf("write samples: resource %q has %d samples for %d timestamps",
				name, len(values), len(res.Timestamps))
		}
		for i, v := range values {
			value, err := marshalValue(v)
			if err != nil {
				return fmt.Errorf("write samples: %s[%d]: %w", name, i, err)
			}
			if _, err := stmt.ExecContext(ctx, res.RunID, name, i, int64(res.Timestamps[i]), value); err != nil {
				return fmt.Errorf("write samples: %s[%d]: %w", name, i, err)
			}
		}
	}
	return nil
}

func writeTasks(ctx context.Context, tx *sql.Tx, runID string, tasks []engine.TaskRecord) error {
	for i, t := range tasks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (run_id, position, name, activity_type, directive, status, started_us, finished_us)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, i, t.Name, t.ActivityType, t.Directive, t.Status.String(), int64(t.Started), int64(t.Finished))
		if err != nil {
			return fmt.Errorf("write task %q: %w", t.Name, err)
		}
	}
	return nil
}

func writeFailures(ctx context.Context, tx *sql.Tx, runID string, failures []engine.Failure) error {
	for i, f := range failures {
		messages, err := marshalMessages(f.Messages)
		if err != nil {
			return fmt.Errorf("write failure %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO failures (run_id, position, directive, task, activity_type, code, time_us, messages)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, i, f.Directive, f.Task, f.ActivityType, string(f.Code), int64(f.Time), messages)
		if err != nil {
			return fmt.Errorf("write failure %d: %w", i, err)
		}
	}
	return nil
}
