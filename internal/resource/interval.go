package resource

import (
	"fmt"
	"math"
)

// ClosedInterval is the set of reals in [Min, Max]. Bounds may be
// infinite. An interval with Min > Max is empty.
type ClosedInterval struct {
	Min float64
	Max float64
}

// Between returns [min, max].
func Between(min, max float64) ClosedInterval { return ClosedInterval{Min: min, Max: max} }

// Above returns [min, +inf].
func Above(min float64) ClosedInterval { return ClosedInterval{Min: min, Max: math.Inf(1)} }

// Below returns [-inf, max].
func Below(max float64) ClosedInterval { return ClosedInterval{Min: math.Inf(-1), Max: max} }

// Everything is [-inf, +inf].
func Everything() ClosedInterval { return ClosedInterval{Min: math.Inf(-1), Max: math.Inf(1)} }

// IsEmpty reports whether the interval contains no reals.
func (i ClosedInterval) IsEmpty() bool { return !(i.Min <= i.Max) }

// Contains reports whether x lies in the interval.
func (i ClosedInterval) Contains(x float64) bool { return i.Min <= x && x <= i.Max }

// Overlaps reports whether the two intervals share at least one point.
func (i ClosedInterval) Overlaps(o ClosedInterval) bool {
	return !i.IsEmpty() && !o.IsEmpty() && i.Min <= o.Max && o.Min <= i.Max
}

// GreatestLowerBound is the intersection of i and o. The result may be
// empty.
func (i ClosedInterval) GreatestLowerBound(o ClosedInterval) ClosedInterval {
	return ClosedInterval{Min: math.Max(i.Min, o.Min), Max: math.Min(i.Max, o.Max)}
}

// LeastUpperBound is the smallest interval containing both i and o.
func (i ClosedInterval) LeastUpperBound(o ClosedInterval) ClosedInterval {
	switch {
	case i.IsEmpty():
		return o
	case o.IsEmpty():
		return i
	}
	return ClosedInterval{Min: math.Min(i.Min, o.Min), Max: math.Max(i.Max, o.Max)}
}

// Minus removes o from i. Since both are closed, the pieces that remain
// are shrunk to the adjacent representable float so they exclude o's
// bounds. The cases are:
//
//	disjoint        -> [i]
//	o covers i      -> []
//	o cuts the left  -> [right remainder]
//	o cuts the right -> [left remainder]
//	o inside i      -> [left remainder, right remainder]
func (i ClosedInterval) Minus(o ClosedInterval) []ClosedInterval {
	if !i.Overlaps(o) {
		if i.IsEmpty() {
			return nil
		}
		return []ClosedInterval{i}
	}

	coversLeft := o.Min <= i.Min
	coversRight := o.Max >= i.Max
	left := ClosedInterval{Min: i.Min, Max: math.Nextafter(o.Min, math.Inf(-1))}
	right := ClosedInterval{Min: math.Nextafter(o.Max, math.Inf(1)), Max: i.Max}

	switch {
	case coversLeft && coversRight:
		return nil
	case coversLeft:
		return nonEmpty(right)
	case coversRight:
		return nonEmpty(left)
	default:
		return nonEmpty(left, right)
	}
}

func nonEmpty(ivs ...ClosedInterval) []ClosedInterval {
	var out []ClosedInterval
	for _, iv := range ivs {
		if !iv.IsEmpty() {
			out = append(out, iv)
		}
	}
	return out
}

func (i ClosedInterval) String() string {
	if i.IsEmpty() {
		return "[]"
	}
	return fmt.Sprintf("[%g, %g]", i.Min, i.Max)
}
