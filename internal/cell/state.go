package cell

import (
	"fmt"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/graph"
)

// State is the type-erased view of a cell that history and the engine
// work with. Effects travel as any and are checked against the cell's
// effect type on delivery.
type State interface {
	ID() ID
	Policy() Policy
	// Get returns a copy of the current value.
	Get() any
	Step(elapsed duration.Duration)
	// ApplyEffect applies one effect without conflict checks.
	ApplyEffect(effect any) error
	// ApplyEvents reconciles a segment of effects emitted at instant at.
	ApplyEvents(segment graph.Graph[any], at duration.Duration) error
	Clone() State
}

// ApplyEffect implements State.
func (c *Cell[V, F]) ApplyEffect(effect any) error {
	f, ok := effect.(F)
	if !ok {
		return c.typeError(effect)
	}
	c.Apply(f)
	return nil
}

// ApplyEvents implements State.
func (c *Cell[V, F]) ApplyEvents(segment graph.Graph[any], at duration.Duration) error {
	var bad any
	typed := graph.FilterMap(segment, func(e any) (F, bool) {
		f, ok := e.(F)
		if !ok && bad == nil {
			bad = e
		}
		return f, ok
	})
	if bad != nil {
		return c.typeError(bad)
	}
	return c.ApplySegment(typed, at)
}

func (c *Cell[V, F]) typeError(got any) error {
	var zero F
	return &EffectTypeError{Cell: c.id, Want: fmt.Sprintf("%T", zero), Got: got}
}

// Ref is a typed, stable handle on a cell. It carries only the ID, so
// holding a Ref never aliases cell storage.
type Ref[V, F any] struct {
	id ID
}

// RefOf builds a Ref for a cell known only by ID. The caller asserts the
// value and effect types.
func RefOf[V, F any](id ID) Ref[V, F] { return Ref[V, F]{id: id} }

// ID returns the referenced cell's identifier.
func (r Ref[V, F]) ID() ID { return r.id }

func (r Ref[V, F]) String() string { return string(r.id) }

// Value extracts the typed value from a State addressed by r.
func (r Ref[V, F]) Value(s State) (V, error) {
	v, ok := s.Get().(V)
	if !ok {
		var zero V
		return zero, fmt.Errorf("cell %q holds %T, not %T", r.id, s.Get(), zero)
	}
	return v, nil
}
