package bridge

import "sync/atomic"

// Clock is a monotonic logical tick counter.
//
// Every reconciliation tick is stamped with a strictly increasing seq so the
// journal and test traces order events without wall-clock races. Atomic so
// observers (journal readers, tests) can sample it outside the driver
// goroutine.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0; the first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next tick number and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last tick number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
