// Package clock provides an injectable time source.
//
// Reducers stay deterministic and never read a Clock. Components that measure
// durations (such as RPC latency) take a Clock so tests can control time.
package clock

import (
	"sync"
	"time"
)

// Clock provides a testable time source.
type Clock interface {
	Now() time.Time
}

// Real is a production Clock backed by time.Now.
type Real struct{}

// Now implements Clock.
func (Real) Now() time.Time { return time.Now() }

// Fake is a deterministic Clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

var _ Clock = (*Fake)(nil)

// NewFake returns a Fake starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now implements Clock.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves time forward by d.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
