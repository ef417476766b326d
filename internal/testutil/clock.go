package testutil

import (
	"sync"
	"time"
)

// DefaultBase is the first instant a StepClock reports unless told otherwise.
var DefaultBase = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

// StepClock is a deterministic wall clock for tests.
//
// Each call to Now returns the base time plus n*step, where n counts prior
// calls. Consultations created one after another therefore get strictly
// increasing creation times, and the same scenario always produces the same
// timestamps and issue dates.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu   sync.Mutex
	base time.Time
	step time.Duration
	n    int64
}

// NewStepClock creates a clock starting at base that advances by step on
// every read. A zero base uses DefaultBase; a zero step uses one minute.
func NewStepClock(base time.Time, step time.Duration) *StepClock {
	if base.IsZero() {
		base = DefaultBase
	}
	if step == 0 {
		step = time.Minute
	}
	return &StepClock{base: base.UTC(), step: step}
}

// Now returns the next instant and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.base.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Peek returns the instant the next Now call will report.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.Add(time.Duration(c.n) * c.step)
}

// Reset rewinds the clock to its base.
//
// Used for test reuse. After Reset(), the next call to Now() returns base.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
