// Package duration defines the simulated-time unit used throughout orbit.
//
// Simulated time is a signed count of microseconds from the start of a
// simulation. Microseconds are the smallest representable step: window
// solving rounds inward to this unit, and the scheduler never orders two
// resumptions closer than one Epsilon apart in time.
//
// Simulated time is never derived from the wall clock. Wall-clock values
// only appear at the edges (the plan start time, result timestamps).
package duration

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Duration is an amount of simulated time in microseconds.
type Duration int64

const (
	Zero        Duration = 0
	Epsilon     Duration = 1
	Microsecond Duration = 1
	Millisecond          = 1000 * Microsecond
	Second               = 1000 * Millisecond
	Minute               = 60 * Second
	Hour                 = 60 * Minute
	Day                  = 24 * Hour

	// Max is the largest representable duration.
	Max Duration = math.MaxInt64
	// Min is the smallest representable duration.
	Min Duration = math.MinInt64
)

// Of returns n units of the given duration.
func Of(n int64, unit Duration) Duration {
	return Duration(n) * unit
}

// FromStd converts a wall-clock duration, truncating below one microsecond.
func FromStd(d time.Duration) Duration {
	return Duration(d / time.Microsecond)
}

// Std converts to a time.Duration. Values outside the time.Duration range saturate.
func (d Duration) Std() time.Duration {
	const limit = Duration(math.MaxInt64 / int64(time.Microsecond))
	switch {
	case d > limit:
		return time.Duration(math.MaxInt64)
	case d < -limit:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(d) * time.Microsecond
}

// Seconds returns the duration as a floating-point number of seconds.
func (d Duration) Seconds() float64 {
	return float64(d) / float64(Second)
}

// FromSeconds converts seconds to a duration, rounding to the nearest microsecond.
func FromSeconds(s float64) Duration {
	return Duration(math.Round(s * float64(Second)))
}

// Ceil rounds a seconds value up to the next representable duration.
// Infinite inputs saturate at Max/Min.
func Ceil(s float64) Duration {
	return saturate(math.Ceil(s * float64(Second)))
}

// Floor rounds a seconds value down to the previous representable duration.
// Infinite inputs saturate at Max/Min.
func Floor(s float64) Duration {
	return saturate(math.Floor(s * float64(Second)))
}

func saturate(us float64) Duration {
	switch {
	case math.IsNaN(us):
		return Zero
	case us >= math.MaxInt64:
		return Max
	case us <= math.MinInt64:
		return Min
	}
	return Duration(us)
}

// Plus adds two durations, saturating on overflow.
func (d Duration) Plus(o Duration) Duration {
	sum := d + o
	if o > 0 && sum < d {
		return Max
	}
	if o < 0 && sum > d {
		return Min
	}
	return sum
}

// Minus subtracts o from d, saturating on overflow.
func (d Duration) Minus(o Duration) Duration {
	if o == Min {
		return d.Plus(Max).Plus(Epsilon)
	}
	return d.Plus(-o)
}

// Times scales the duration by n.
func (d Duration) Times(n int64) Duration {
	return d * Duration(n)
}

// Shorter reports whether d is strictly shorter than o.
func (d Duration) Shorter(o Duration) bool { return d < o }

// Longer reports whether d is strictly longer than o.
func (d Duration) Longer(o Duration) bool { return d > o }

// Less returns the shorter of the two durations.
func Less(a, b Duration) Duration {
	if a < b {
		return a
	}
	return b
}

// Greater returns the longer of the two durations.
func Greater(a, b Duration) Duration {
	if a > b {
		return a
	}
	return b
}

// Parse accepts Go duration syntax ("1h30m", "250ms", "5s") and bare
// integers, which are interpreted as microseconds.
func Parse(s string) (Duration, error) {
	var us int64
	if _, err := fmt.Sscanf(s, "%d", &us); err == nil && fmt.Sprintf("%d", us) == s {
		return Duration(us), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return FromStd(d), nil
}

// String renders the duration using Go duration syntax.
func (d Duration) String() string {
	switch d {
	case Max:
		return "+inf"
	case Min:
		return "-inf"
	}
	return d.Std().String()
}

// UnmarshalJSON accepts either a number of microseconds or a string in
// Parse syntax, so parameter documents can write "90s" or 90000000.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := Parse(s)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}
	var us int64
	if err := json.Unmarshal(data, &us); err != nil {
		return fmt.Errorf("duration: expected microseconds or a string, got %s", data)
	}
	*d = Duration(us)
	return nil
}
