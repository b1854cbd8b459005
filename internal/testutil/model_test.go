package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
)

func TestCounterModel(t *testing.T) {
	model := CounterModel()
	require.NoError(t, model.Validate())

	schedule := []ir.Directive{
		{ID: "a", Type: "bump", Args: ir.Map{"by": ir.Int(1)}},
		{ID: "b", Type: "bump", Offset: duration.Second, Args: ir.Map{"by": ir.Int(2), "after": ir.String("1s")}},
		{ID: "c", Type: "fail", Args: ir.Map{"message": ir.String("boom")}},
	}
	res, err := engine.Simulate(context.Background(), model, schedule,
		time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), 3*duration.Second, duration.Second,
		engine.WithRunIDGenerator(NewRunIDSequence("t")))
	require.NoError(t, err)

	assert.Equal(t, "t-0001", res.RunID)
	assert.Equal(t, []ir.Value{ir.Int(1), ir.Int(1), ir.Int(3), ir.Int(3)}, res.Samples["count"])

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "c", res.Failures[0].Directive)
	assert.Equal(t, engine.ErrCodeTaskFailed, res.Failures[0].Code)
}
