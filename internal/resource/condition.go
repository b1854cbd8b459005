package resource

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/ir"
)

// Condition is a predicate over a resource's value. It is a sealed union
// of RealCondition and DiscreteCondition.
type Condition interface {
	// Holds evaluates the condition on a single value.
	Holds(v ir.Value) bool
	fmt.Stringer
	isCondition()
}

// RealCondition holds while the value lies in any of the threshold
// intervals.
type RealCondition struct {
	Within []ClosedInterval
}

func (RealCondition) isCondition() {}

// RealWithin holds while the value lies in any of the intervals.
func RealWithin(ivs ...ClosedInterval) RealCondition { return RealCondition{Within: ivs} }

// AtLeast holds while the value is >= min.
func AtLeast(min float64) RealCondition { return RealWithin(Above(min)) }

// AtMost holds while the value is <= max.
func AtMost(max float64) RealCondition { return RealWithin(Below(max)) }

// Holds implements Condition.
func (c RealCondition) Holds(v ir.Value) bool {
	x, ok := ir.AsReal(v)
	if !ok {
		return false
	}
	return slices.ContainsFunc(c.Within, func(iv ClosedInterval) bool { return iv.Contains(x) })
}

func (c RealCondition) String() string {
	parts := make([]string, len(c.Within))
	for i, iv := range c.Within {
		parts[i] = iv.String()
	}
	return "within " + strings.Join(parts, " or ")
}

// DiscreteCondition holds while the value equals Value.
type DiscreteCondition struct {
	Value ir.Value
}

func (DiscreteCondition) isCondition() {}

// DiscreteEquals holds while the value equals v.
func DiscreteEquals(v ir.Value) DiscreteCondition { return DiscreteCondition{Value: v} }

// Holds implements Condition.
func (c DiscreteCondition) Holds(v ir.Value) bool { return ir.Equal(c.Value, v) }

func (c DiscreteCondition) String() string {
	data, err := ir.Marshal(c.Value)
	if err != nil {
		return fmt.Sprintf("equals %v", c.Value)
	}
	return "equals " + string(data)
}

// Solve returns the instants of domain at which cond holds, for dynamics
// whose origin is the instant origin.
//
// Real dynamics are inverted in closed form. Crossing times are rounded
// inward to whole microseconds (entries up, exits down), so every instant
// in the result satisfies the condition even when the exact crossing falls
// between representable times.
func Solve(cond Condition, dyn Dynamics, origin duration.Duration, domain Window) (Windows, error) {
	if domain.IsEmpty() {
		return nil, nil
	}
	switch c := cond.(type) {
	case RealCondition:
		switch d := dyn.(type) {
		case Real:
			return solveReal(c, d, origin, domain), nil
		case Discrete:
			x, ok := ir.AsReal(d.Value)
			if !ok {
				return nil, fmt.Errorf("condition %s needs a numeric value, got %s", c, ir.TypeName(d.Value))
			}
			return solveReal(c, Constant(x), origin, domain), nil
		}
	case DiscreteCondition:
		switch d := dyn.(type) {
		case Discrete:
			if c.Holds(d.Value) {
				return Windows{domain}, nil
			}
			return nil, nil
		case Real:
			if d.Rate == 0 && c.Holds(ir.Real(d.Initial)) {
				return Windows{domain}, nil
			}
			return nil, fmt.Errorf("condition %s needs discrete dynamics, got %s", c, d)
		}
	}
	return nil, fmt.Errorf("cannot solve %v over %v", cond, dyn)
}

func solveReal(c RealCondition, d Real, origin duration.Duration, domain Window) Windows {
	if d.Rate == 0 {
		if c.Holds(ir.Real(d.Initial)) {
			return Windows{domain}
		}
		return nil
	}

	// Visit thresholds in the order the value sweeps through them.
	thresholds := slices.Clone(c.Within)
	slices.SortFunc(thresholds, func(a, b ClosedInterval) int {
		if d.Rate > 0 {
			return compareFloat(a.Min, b.Min)
		}
		return compareFloat(b.Max, a.Max)
	})

	var out []Window
	for _, iv := range thresholds {
		if iv.IsEmpty() {
			continue
		}
		near, far := iv.Min, iv.Max
		if d.Rate < 0 {
			near, far = iv.Max, iv.Min
		}
		entry := (near - d.Initial) / d.Rate
		exit := (far - d.Initial) / d.Rate
		if exit < 0 {
			// The value has already swept past this interval.
			continue
		}
		w := Window{
			Start: origin.Plus(duration.Ceil(math.Max(entry, 0))),
			End:   origin.Plus(duration.Floor(exit)),
		}
		if clipped := w.Intersect(domain); !clipped.IsEmpty() {
			out = append(out, clipped)
		}
	}
	return NewWindows(out...)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
