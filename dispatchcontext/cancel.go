package dispatchcontext

import (
	"fmt"
	"time"

	"github.com/dispatchrun/dispatch-go/dispatchproto"
)

// ErrCancelled is returned by a suspension primitive reached after the
// Context's CancelScope has already been cancelled. It wraps
// dispatchproto.ErrCancelled so ClassifyError maps an Exit built from it to
// StatusTimeout (spec.md §8's "Cancellation on deadline" scenario).
var ErrCancelled = fmt.Errorf("dispatchcontext: coroutine was cancelled: %w", dispatchproto.ErrCancelled)

// CancelScope tracks whether the coroutine underneath it should stop: a
// scheduler-delivered cancellation (PollResult.Error surfacing through
// awaitAll) or a deadline it was given up front (spec.md §4.F). Checking
// the deadline is a process-local wall-clock read, so it can legitimately
// answer differently across replay attempts made at different real times;
// that is the intended "best effort, time-boxed" behavior, not a
// determinism bug, since it only ever gates code that runs before the next
// genuinely new suspension point.
type CancelScope struct {
	deadline  time.Time
	cancelled bool
}

// NewCancelScope builds a CancelScope that expires after d, or never if d
// is zero.
func NewCancelScope(d time.Duration) *CancelScope {
	cs := &CancelScope{}
	if d > 0 {
		cs.deadline = time.Now().Add(d)
	}
	return cs
}

// Cancel marks the scope cancelled regardless of its deadline.
func (c *CancelScope) Cancel() {
	if c != nil {
		c.cancelled = true
	}
}

// Cancelled reports whether the scope has been explicitly cancelled or its
// deadline has elapsed.
func (c *CancelScope) Cancelled() bool {
	if c == nil {
		return false
	}
	if c.cancelled {
		return true
	}
	return !c.deadline.IsZero() && time.Now().After(c.deadline)
}

// Deadline returns the scope's expiration time, if any.
func (c *CancelScope) Deadline() (time.Time, bool) {
	if c == nil || c.deadline.IsZero() {
		return time.Time{}, false
	}
	return c.deadline, true
}

// RemainingTime is how long the scope has left before it expires, zero
// meaning unset/unlimited (the same convention as dispatchproto.Call's
// Expiration). A scope whose deadline has already passed returns zero
// rather than a negative duration, since Poll.MaxWait has no meaningful
// negative value.
func (c *CancelScope) RemainingTime() time.Duration {
	deadline, ok := c.Deadline()
	if !ok {
		return 0
	}
	if remaining := time.Until(deadline); remaining > 0 {
		return remaining
	}
	return 0
}
