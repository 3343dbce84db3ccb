package testutil

import (
	"sync"
	"time"
)

// Epoch is the instant a ManualClock starts at.
var Epoch = time.Date(2021, time.June, 1, 12, 0, 0, 0, time.UTC)

// ManualClock is a wall clock that only moves when told to.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock reading Epoch.
func NewManualClock() *ManualClock {
	return &ManualClock{now: Epoch}
}

// Now returns the current reading.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// SteppingClock advances by a fixed step every time it is read. Useful for
// giving each operation a predictable non-zero duration.
type SteppingClock struct {
	ManualClock
	step time.Duration
}

// NewSteppingClock creates a clock starting at Epoch that advances by step
// after every read.
func NewSteppingClock(step time.Duration) *SteppingClock {
	return &SteppingClock{ManualClock: ManualClock{now: Epoch}, step: step}
}

// Now returns the current reading, then advances the clock.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}
