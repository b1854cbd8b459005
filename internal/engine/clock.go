package engine

import "sync/atomic"

// Clock hands out strictly increasing sequence numbers.
//
// The agenda orders resumptions by simulated time and then by sequence,
// so two tasks due at the same instant always resume in the order they
// were scheduled. Sequence numbers also name tasks in creation order.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// although a simulation only ever touches it from the driver.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
