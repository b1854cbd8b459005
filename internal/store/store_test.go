package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_RunsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.WriteRun(ctx, createTestRun("run-1"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	summary, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Seq)

	// The next write continues the sequence.
	_, err = s.WriteRun(ctx, createTestRun("run-2"))
	require.NoError(t, err)
	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(2), runs[1].Seq)
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "runs.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open run store")
}

func TestOpen_ConnectionSettings(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.pragma, func(t *testing.T) {
			var got string
			require.NoError(t, s.db.QueryRow("PRAGMA "+tt.pragma).Scan(&got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpen_StampsSchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	require.NoError(t, s.db.QueryRow(`PRAGMA user_version`).Scan(&version))
	assert.Equal(t, SchemaVersion, version)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec(`PRAGMA user_version = 99`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.ErrorIs(t, err, ErrNewerSchema)
	assert.Contains(t, err.Error(), "found version 99")
}

func TestSchema_PlanLookupUsesIndex(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.db.Query(`EXPLAIN QUERY PLAN
		SELECT id FROM runs WHERE plan_hash = ? AND model = ? AND model_version = ?`,
		"h", "orbit-demo", "1.0.0")
	require.NoError(t, err)
	defer rows.Close()

	var plan []string
	for rows.Next() {
		var id, parent, unused int
		var detail string
		require.NoError(t, rows.Scan(&id, &parent, &unused, &detail))
		plan = append(plan, detail)
	}
	require.NoError(t, rows.Err())
	require.NotEmpty(t, plan)
	assert.Contains(t, plan[0], "idx_runs_plan")
}

func TestSchema_SamplesNeedAStoredRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO samples (run_id, resource, idx, time_us, value) VALUES ('ghost', 'battery', 0, 0, '1')`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOREIGN KEY")
}

func TestSchema_SeqIsUnique(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteRun(ctx, createTestRun("run-1"))
	require.NoError(t, err)

	_, err = s.db.Exec(`
		INSERT INTO runs (id, seq, plan_name, plan_hash, model, model_version, start, duration, horizon, sampling_period, points, results)
		VALUES ('run-x', 1, 'p', 'h', 'm', 'v', '2030-01-01T00:00:00Z', 0, 0, 1, 0, '{}')`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE")

	_, err = s.ReadRun(ctx, "run-x")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestClose_NilStore(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
	assert.NoError(t, (&Store{}).Close())
}
