package cell

import (
	"errors"
	"fmt"

	"github.com/roach88/orbit/internal/duration"
)

// EffectConflict reports two concurrent effects on one cell whose combined
// outcome depends on their order. It is fatal: the simulation halts at
// Instant rather than pick an order.
type EffectConflict struct {
	Cell  ID
	Left  any
	Right any
	// Instant is the simulated time of the conflicting point.
	Instant duration.Duration
	// Outcomes are the two values that could not be reconciled.
	Outcomes [2]any
}

func (e *EffectConflict) Error() string {
	return fmt.Sprintf("effect conflict on cell %q at %s: %v and %v (outcomes %v vs %v)",
		e.Cell, e.Instant, e.Left, e.Right, e.Outcomes[0], e.Outcomes[1])
}

// IsEffectConflict reports whether err is or wraps an *EffectConflict.
func IsEffectConflict(err error) bool {
	var ec *EffectConflict
	return errors.As(err, &ec)
}

// AsEffectConflict extracts the *EffectConflict from err.
func AsEffectConflict(err error) (*EffectConflict, bool) {
	var ec *EffectConflict
	if errors.As(err, &ec) {
		return ec, true
	}
	return nil, false
}

// EffectTypeError reports an effect delivered to a cell whose effect type
// does not match.
type EffectTypeError struct {
	Cell ID
	Want string
	Got  any
}

func (e *EffectTypeError) Error() string {
	return fmt.Sprintf("cell %q expects %s effects, got %T", e.Cell, e.Want, e.Got)
}
