package testutil

import (
	"errors"

	"github.com/roach88/orbit/internal/cell"
	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
	"github.com/roach88/orbit/internal/resource"
)

// Count is the cell of CounterModel.
var Count = cell.RefOf[int64, cell.Add]("count")

// BumpParams are the arguments of the "bump" activity.
type BumpParams struct {
	By    int64             `json:"by" validate:"required"`
	After duration.Duration `json:"after" validate:"gte=0"`
}

// CounterModel is the smallest useful model: one counter cell exposed as
// the resource "count". Its "bump" activity waits After and then adds By;
// "fail" waits After and then fails. Tests use it where the mission model
// would make expected results hard to write down.
func CounterModel() *engine.Model {
	resources := resource.NewRegistry()
	resources.MustRegister("count", ir.IntSchema(), resource.DiscreteOf(Count))

	activities := engine.NewRegistry()
	activities.MustRegister(
		engine.Activity("bump", "Add to the counter", func(tc *engine.TaskContext, p *BumpParams) error {
			if p.After > 0 {
				tc.Delay(p.After)
			}
			return engine.Emit(tc, Count, cell.Add(p.By))
		}),
		engine.Activity("fail", "Fail with a message", func(tc *engine.TaskContext, p *FailParams) error {
			if p.After > 0 {
				tc.Delay(p.After)
			}
			return errors.New(p.Message)
		}),
	)

	return &engine.Model{
		Name:       "counter",
		Version:    "test",
		Cells:      []cell.State{cell.NewCounter(Count.ID(), 0)},
		Resources:  resources,
		Activities: activities,
	}
}

// FailParams are the arguments of the "fail" activity.
type FailParams struct {
	Message string            `json:"message" validate:"required"`
	After   duration.Duration `json:"after" validate:"gte=0"`
}
