// Package cell holds simulated state slots and the rules that combine
// concurrent effects on them.
//
// A Cell pairs a current value with an Applicator (how the value starts,
// evolves with time, is copied and is changed by an effect), an effect
// Algebra (how effects compose), and a conflict Policy (what happens when
// two branches change the cell at the same instant).
package cell

import (
	"fmt"
	"reflect"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/graph"
)

// ID is the stable identifier of a cell. Tasks address cells by ID and
// never hold the cell's storage directly.
type ID string

// Applicator defines the value semantics of a cell.
//
// Duplicate must return a deep copy that shares no mutable storage with
// its argument. Apply and Step may mutate the value they are given and
// return it, so callers duplicate first when they need the original.
type Applicator[V, F any] interface {
	Initial() V
	Step(value V, elapsed duration.Duration) V
	Duplicate(value V) V
	Apply(value V, effect F) V
}

// Equaler is implemented by applicators whose values need a custom
// equality for conflict checks. Without it, reflect.DeepEqual is used.
type Equaler[V any] interface {
	Equal(a, b V) bool
}

// Policy selects how concurrent effects on one cell are reconciled.
type Policy uint8

const (
	// NonCommuting rejects two concurrent non-identity effects unless both
	// produce the same value in either order, such as two sets to one value.
	NonCommuting Policy = iota
	// Commuting folds concurrent effects through the effect algebra and
	// applies the result without checking.
	Commuting
	// Auto applies both orders and accepts the result only if they agree.
	Auto
)

func (p Policy) String() string {
	switch p {
	case NonCommuting:
		return "non-commuting"
	case Commuting:
		return "commuting"
	case Auto:
		return "auto"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParsePolicy is the inverse of Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "non-commuting":
		return NonCommuting, nil
	case "commuting":
		return Commuting, nil
	case "auto":
		return Auto, nil
	default:
		return 0, fmt.Errorf("unknown conflict policy %q", s)
	}
}

// Cell is one state slot. A Cell is owned by a single history branch; other
// branches receive a Duplicate.
type Cell[V, F any] struct {
	id      ID
	app     Applicator[V, F]
	effects graph.Algebra[F]
	policy  Policy
	value   V
}

// New creates a cell holding app.Initial().
func New[V, F any](id ID, app Applicator[V, F], effects graph.Algebra[F], policy Policy) *Cell[V, F] {
	return &Cell[V, F]{
		id:      id,
		app:     app,
		effects: effects,
		policy:  policy,
		value:   app.Initial(),
	}
}

// ID returns the cell's identifier.
func (c *Cell[V, F]) ID() ID { return c.id }

// Policy returns the cell's conflict policy.
func (c *Cell[V, F]) Policy() Policy { return c.policy }

// Ref returns the typed handle tasks use to address this cell.
func (c *Cell[V, F]) Ref() Ref[V, F] { return Ref[V, F]{id: c.id} }

// Value returns a copy of the current value.
func (c *Cell[V, F]) Value() V { return c.app.Duplicate(c.value) }

// Get implements State.
func (c *Cell[V, F]) Get() any { return c.Value() }

// Step advances the value by elapsed simulated time.
func (c *Cell[V, F]) Step(elapsed duration.Duration) {
	if elapsed == 0 {
		return
	}
	c.value = c.app.Step(c.value, elapsed)
}

// Apply applies a single effect with no conflict check. It is used for
// effects emitted sequentially within one branch.
func (c *Cell[V, F]) Apply(effect F) {
	c.value = c.app.Apply(c.value, effect)
}

// Duplicate returns an independent copy of the cell.
func (c *Cell[V, F]) Duplicate() *Cell[V, F] {
	dup := *c
	dup.value = c.app.Duplicate(c.value)
	return &dup
}

// Clone implements State.
func (c *Cell[V, F]) Clone() State { return c.Duplicate() }

// ApplySegment applies the effects emitted at one discrete point, reconciling
// concurrent branches according to the cell's policy. On conflict the cell
// is left unchanged and an *EffectConflict is returned.
func (c *Cell[V, F]) ApplySegment(segment graph.Graph[F], at duration.Duration) error {
	if segment.IsEmpty() {
		return nil
	}

	if c.policy == Commuting {
		combined := graph.Evaluate(segment, c.effects, func(f F) F { return f })
		c.value = c.app.Apply(c.value, combined)
		return nil
	}

	s := graph.Evaluate[F, step[V, F]](segment, resolver[V, F]{cell: c, at: at}, c.atom)
	next, err := s.run(c.app.Duplicate(c.value))
	if err != nil {
		return err
	}
	c.value = next
	return nil
}

func (c *Cell[V, F]) equal(a, b V) bool {
	if eq, ok := c.app.(Equaler[V]); ok {
		return eq.Equal(a, b)
	}
	return reflect.DeepEqual(a, b)
}

func (c *Cell[V, F]) atom(f F) step[V, F] {
	return step[V, F]{
		effect:   f,
		identity: c.isIdentity(f),
		run: func(v V) (V, error) {
			return c.app.Apply(v, f), nil
		},
	}
}

// isIdentity reports whether f folds to the algebra's empty effect, such as
// a zero Set or Add(0).
func (c *Cell[V, F]) isIdentity(f F) bool {
	return reflect.DeepEqual(f, c.effects.Empty())
}

// step is the interpretation of a subgraph as a fallible value transformer.
// effect is the subgraph folded through the cell's effect algebra; it is
// used to trial the other order at a concurrent node and to report
// conflicts. run is called at most once per enclosing run.
type step[V, F any] struct {
	effect   F
	run      func(V) (V, error)
	empty    bool
	identity bool
}

// resolver is the algebra that turns a segment into a step, checking every
// concurrent node against the cell's policy.
type resolver[V, F any] struct {
	cell *Cell[V, F]
	at   duration.Duration
}

func (r resolver[V, F]) Empty() step[V, F] {
	return step[V, F]{
		effect:   r.cell.effects.Empty(),
		run:      func(v V) (V, error) { return v, nil },
		empty:    true,
		identity: true,
	}
}

func (r resolver[V, F]) Sequentially(prefix, suffix step[V, F]) step[V, F] {
	if prefix.empty {
		return suffix
	}
	if suffix.empty {
		return prefix
	}
	effect := r.cell.effects.Sequentially(prefix.effect, suffix.effect)
	return step[V, F]{
		effect:   effect,
		identity: r.cell.isIdentity(effect),
		run: func(v V) (V, error) {
			mid, err := prefix.run(v)
			if err != nil {
				return v, err
			}
			return suffix.run(mid)
		},
	}
}

// Concurrently runs each side once from its own copy of the incoming value,
// then trials the other order by applying the folded effect of one side to
// the other side's outcome. A side that folds to the identity effect never
// conflicts.
func (r resolver[V, F]) Concurrently(left, right step[V, F]) step[V, F] {
	if left.empty {
		return right
	}
	if right.empty {
		return left
	}
	c := r.cell
	effect := c.effects.Concurrently(left.effect, right.effect)
	return step[V, F]{
		effect:   effect,
		identity: c.isIdentity(effect),
		run: func(v V) (V, error) {
			onlyLeft, err := left.run(c.app.Duplicate(v))
			if err != nil {
				return v, err
			}
			onlyRight, err := right.run(c.app.Duplicate(v))
			if err != nil {
				return v, err
			}

			switch {
			case left.identity:
				return onlyRight, nil
			case right.identity:
				return onlyLeft, nil
			}

			if c.policy == NonCommuting && !c.equal(onlyLeft, onlyRight) {
				return v, c.conflict(r.at, left, right, onlyLeft, onlyRight)
			}

			leftFirst := c.app.Apply(c.app.Duplicate(onlyLeft), right.effect)
			rightFirst := c.app.Apply(c.app.Duplicate(onlyRight), left.effect)
			if !c.equal(leftFirst, rightFirst) {
				return v, c.conflict(r.at, left, right, leftFirst, rightFirst)
			}
			return leftFirst, nil
		},
	}
}

func (c *Cell[V, F]) conflict(at duration.Duration, left, right step[V, F], a, b V) *EffectConflict {
	return &EffectConflict{
		Cell:     c.id,
		Left:     left.effect,
		Right:    right.effect,
		Instant:  at,
		Outcomes: [2]any{a, b},
	}
}
