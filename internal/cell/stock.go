package cell

import (
	"fmt"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/graph"
)

// Set is the effect type of a Register. The zero Set leaves the register
// unchanged.
type Set[T any] struct {
	Value T
	Valid bool
}

// SetTo returns an effect that overwrites a register with v.
func SetTo[T any](v T) Set[T] { return Set[T]{Value: v, Valid: true} }

func (s Set[T]) String() string {
	if !s.Valid {
		return "noop"
	}
	return fmt.Sprintf("set(%v)", s.Value)
}

// RegisterApplicator holds a plain value of type T. T must not contain
// mutable references, since Duplicate is a shallow copy.
type RegisterApplicator[T any] struct {
	Init T
}

func (a RegisterApplicator[T]) Initial() T                      { return a.Init }
func (a RegisterApplicator[T]) Step(v T, _ duration.Duration) T { return v }
func (a RegisterApplicator[T]) Duplicate(v T) T                 { return v }

func (a RegisterApplicator[T]) Apply(v T, e Set[T]) T {
	if !e.Valid {
		return v
	}
	return e.Value
}

// SetAlgebra composes register writes: the later write wins. Concurrent
// writes keep the left one, which only matters for conflict reports.
func SetAlgebra[T any]() graph.Algebra[Set[T]] {
	return graph.Funcs[Set[T]]{
		EmptyFunc: func() Set[T] { return Set[T]{} },
		SequentiallyFunc: func(a, b Set[T]) Set[T] {
			if b.Valid {
				return b
			}
			return a
		},
		ConcurrentlyFunc: func(a, b Set[T]) Set[T] {
			if a.Valid {
				return a
			}
			return b
		},
	}
}

// NewRegister creates a NonCommuting register cell.
func NewRegister[T any](id ID, initial T) *Cell[T, Set[T]] {
	return New[T, Set[T]](id, RegisterApplicator[T]{Init: initial}, SetAlgebra[T](), NonCommuting)
}

// Add is the effect type of a Counter.
type Add int64

func (a Add) String() string { return fmt.Sprintf("add(%d)", int64(a)) }

// CounterApplicator holds an int64 changed by additions.
type CounterApplicator struct {
	Init int64
}

func (a CounterApplicator) Initial() int64                          { return a.Init }
func (a CounterApplicator) Step(v int64, _ duration.Duration) int64 { return v }
func (a CounterApplicator) Duplicate(v int64) int64                 { return v }
func (a CounterApplicator) Apply(v int64, e Add) int64              { return v + int64(e) }

// AddAlgebra sums additions in both compositions.
var AddAlgebra graph.Algebra[Add] = graph.Funcs[Add]{
	EmptyFunc:        func() Add { return 0 },
	SequentiallyFunc: func(a, b Add) Add { return a + b },
	ConcurrentlyFunc: func(a, b Add) Add { return a + b },
}

// NewCounter creates a Commuting counter cell.
func NewCounter(id ID, initial int64) *Cell[int64, Add] {
	return New[int64, Add](id, CounterApplicator{Init: initial}, AddAlgebra, Commuting)
}

// Volume is the value of an Accumulator: an amount that changes at Rate
// units per second between effects.
type Volume struct {
	Amount float64
	Rate   float64
}

// Delta changes an Accumulator's amount and rate.
type Delta struct {
	Amount float64
	Rate   float64
}

// AddAmount returns a Delta changing only the amount.
func AddAmount(x float64) Delta { return Delta{Amount: x} }

// AddRate returns a Delta changing only the rate.
func AddRate(x float64) Delta { return Delta{Rate: x} }

func (d Delta) String() string {
	return fmt.Sprintf("delta(amount=%g, rate=%g)", d.Amount, d.Rate)
}

// AccumulatorApplicator integrates a constant rate between effects.
type AccumulatorApplicator struct {
	Init Volume
}

func (a AccumulatorApplicator) Initial() Volume          { return a.Init }
func (a AccumulatorApplicator) Duplicate(v Volume) Volume { return v }

func (a AccumulatorApplicator) Step(v Volume, elapsed duration.Duration) Volume {
	v.Amount += v.Rate * elapsed.Seconds()
	return v
}

func (a AccumulatorApplicator) Apply(v Volume, d Delta) Volume {
	v.Amount += d.Amount
	v.Rate += d.Rate
	return v
}

// DeltaAlgebra sums deltas in both compositions.
var DeltaAlgebra graph.Algebra[Delta] = graph.Funcs[Delta]{
	EmptyFunc: func() Delta { return Delta{} },
	SequentiallyFunc: func(a, b Delta) Delta {
		return Delta{Amount: a.Amount + b.Amount, Rate: a.Rate + b.Rate}
	},
	ConcurrentlyFunc: func(a, b Delta) Delta {
		return Delta{Amount: a.Amount + b.Amount, Rate: a.Rate + b.Rate}
	},
}

// NewAccumulator creates a Commuting accumulator cell.
func NewAccumulator(id ID, initial Volume) *Cell[Volume, Delta] {
	return New[Volume, Delta](id, AccumulatorApplicator{Init: initial}, DeltaAlgebra, Commuting)
}

// Affine is the effect type of an Arith cell: x -> x*Scale + Offset.
type Affine struct {
	Scale  float64
	Offset float64
}

// Multiply returns an effect scaling the value by k.
func Multiply(k float64) Affine { return Affine{Scale: k} }

// Increment returns an effect adding k to the value.
func Increment(k float64) Affine { return Affine{Scale: 1, Offset: k} }

func (f Affine) String() string {
	switch {
	case f.Offset == 0:
		return fmt.Sprintf("multiply(%g)", f.Scale)
	case f.Scale == 1:
		return fmt.Sprintf("add(%g)", f.Offset)
	default:
		return fmt.Sprintf("affine(%g, %g)", f.Scale, f.Offset)
	}
}

// ArithApplicator holds a float64 changed by affine maps.
type ArithApplicator struct {
	Init float64
}

func (a ArithApplicator) Initial() float64                            { return a.Init }
func (a ArithApplicator) Step(v float64, _ duration.Duration) float64 { return v }
func (a ArithApplicator) Duplicate(v float64) float64                 { return v }
func (a ArithApplicator) Apply(v float64, f Affine) float64           { return v*f.Scale + f.Offset }

// AffineAlgebra composes affine maps. Concurrent maps are composed left
// then right; the Auto policy decides whether that order is safe.
var AffineAlgebra graph.Algebra[Affine] = graph.Funcs[Affine]{
	EmptyFunc:        func() Affine { return Affine{Scale: 1} },
	SequentiallyFunc: composeAffine,
	ConcurrentlyFunc: composeAffine,
}

func composeAffine(first, then Affine) Affine {
	return Affine{Scale: first.Scale * then.Scale, Offset: first.Offset*then.Scale + then.Offset}
}

// NewArith creates an arithmetic cell with the given policy.
func NewArith(id ID, initial float64, policy Policy) *Cell[float64, Affine] {
	return New[float64, Affine](id, ArithApplicator{Init: initial}, AffineAlgebra, policy)
}
