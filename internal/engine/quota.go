package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/orbit/internal/duration"
)

// DefaultStepQuota bounds the number of batches at one instant.
const DefaultStepQuota = 1000

// StepQuota counts the batches run at the current instant and enforces a
// limit.
//
// Work rescheduled at zero delay (Delay(0), waking waiters, suspended
// reads) runs in a further batch at the same instant. A task that keeps
// doing this never lets time advance. The quota turns that livelock into
// a StepsExceededError.
//
// The count resets whenever the instant changes.
type StepQuota struct {
	limit   int
	instant duration.Duration
	current int
}

// NewStepQuota creates a quota with the given per-instant limit.
// A limit of zero or less disables enforcement.
func NewStepQuota(limit int) *StepQuota {
	return &StepQuota{limit: limit, instant: duration.Min}
}

// Check records one batch at instant at.
//
// Returns StepsExceededError if this batch goes over the limit.
func (q *StepQuota) Check(at duration.Duration) error {
	if at != q.instant {
		q.instant = at
		q.current = 0
	}
	q.current++
	if q.limit > 0 && q.current > q.limit {
		return &StepsExceededError{
			Instant: at,
			Steps:   q.current,
			Limit:   q.limit,
		}
	}
	return nil
}

// Current returns the batch count at the current instant.
func (q *StepQuota) Current() int {
	return q.current
}

// Limit returns the per-instant limit.
func (q *StepQuota) Limit() int {
	return q.limit
}

// StepsExceededError is returned when one instant runs too many batches.
//
// It halts the simulation. Results computed before the instant are kept.
type StepsExceededError struct {
	Instant duration.Duration // The instant that would not advance
	Steps   int               // Batches attempted at the instant
	Limit   int               // Maximum allowed batches
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("instant %s exceeded step quota: %d steps > %d limit",
		e.Instant, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
