// Package resource projects cells into closed-form value-over-time
// descriptions and solves for the windows where a condition holds.
package resource

import (
	"fmt"
	"math"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/ir"
)

// Dynamics describes a resource's value from some origin instant until
// the next change. It is a sealed union of Discrete and Real.
type Dynamics interface {
	// ValueAt evaluates the dynamics elapsed time after its origin.
	ValueAt(elapsed duration.Duration) ir.Value
	isDynamics()
}

// Discrete is a value that stays constant until perturbed.
type Discrete struct {
	Value ir.Value
}

func (Discrete) isDynamics() {}

// ValueAt implements Dynamics.
func (d Discrete) ValueAt(duration.Duration) ir.Value { return d.Value }

func (d Discrete) String() string {
	data, err := ir.Marshal(d.Value)
	if err != nil {
		return fmt.Sprintf("discrete(%v)", d.Value)
	}
	return "discrete(" + string(data) + ")"
}

// Real is the affine function initial + rate*t, with t in seconds.
type Real struct {
	Initial float64
	Rate    float64
}

func (Real) isDynamics() {}

// At evaluates the function elapsed time after its origin.
func (r Real) At(elapsed duration.Duration) float64 {
	if r.Rate == 0 {
		return r.Initial
	}
	return r.Initial + r.Rate*elapsed.Seconds()
}

// ValueAt implements Dynamics.
func (r Real) ValueAt(elapsed duration.Duration) ir.Value { return ir.Real(r.At(elapsed)) }

func (r Real) String() string {
	return fmt.Sprintf("real(%g %+g/s)", r.Initial, r.Rate)
}

// Constant is Real dynamics with zero rate.
func Constant(v float64) Real { return Real{Initial: v} }

// Linear is Real dynamics with the given initial value and rate per second.
func Linear(initial, rate float64) Real { return Real{Initial: initial, Rate: rate} }

// EqualDynamics reports whether two dynamics describe the same function.
func EqualDynamics(a, b Dynamics) bool {
	switch x := a.(type) {
	case Discrete:
		y, ok := b.(Discrete)
		return ok && ir.Equal(x.Value, y.Value)
	case Real:
		y, ok := b.(Real)
		return ok && x == y
	default:
		return false
	}
}

// Shift re-bases dynamics so that their origin moves later by elapsed.
func Shift(d Dynamics, elapsed duration.Duration) Dynamics {
	if r, ok := d.(Real); ok {
		return Real{Initial: r.At(elapsed), Rate: r.Rate}
	}
	return d
}

// Serialize converts dynamics to wire form, for storage and reports.
func Serialize(d Dynamics) ir.Value {
	switch x := d.(type) {
	case Discrete:
		return ir.Map{"type": ir.String("discrete"), "value": x.Value}
	case Real:
		return ir.Map{"type": ir.String("real"), "initial": ir.Real(x.Initial), "rate": ir.Real(x.Rate)}
	default:
		return ir.Null{}
	}
}

// Deserialize is the inverse of Serialize.
func Deserialize(v ir.Value) (Dynamics, error) {
	m, ok := v.(ir.Map)
	if !ok {
		return nil, fmt.Errorf("dynamics: expected map, got %s", ir.TypeName(v))
	}
	switch m["type"] {
	case ir.String("discrete"):
		value, present := m["value"]
		if !present {
			return nil, fmt.Errorf("dynamics: discrete without value")
		}
		return Discrete{Value: value}, nil
	case ir.String("real"):
		initial, ok1 := ir.AsReal(m["initial"])
		rate, ok2 := ir.AsReal(m["rate"])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("dynamics: real needs numeric initial and rate")
		}
		if math.IsNaN(initial) || math.IsNaN(rate) {
			return nil, fmt.Errorf("dynamics: NaN in real dynamics")
		}
		return Real{Initial: initial, Rate: rate}, nil
	default:
		return nil, fmt.Errorf("dynamics: unknown type %v", m["type"])
	}
}
