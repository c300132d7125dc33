package dispatch

import (
	"fmt"

	"github.com/dispatchrun/dispatch-go/dispatchproto"
)

// Error wraps a dispatchproto.Status with the request context it occurred
// in, so callers can make the same transient/permanent decision the
// scheduler would (spec.md §7's "user-visible surface").
type Error struct {
	Op     string
	Status dispatchproto.Status
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatch: %s: %s: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("dispatch: %s: %s", e.Op, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the underlying status is one the scheduler
// (or, for Local Client errors, this SDK's own retry loop) would retry.
func (e *Error) Transient() bool { return e.Status.Transient() }

// DispatchStatus makes *Error satisfy dispatchproto.Statuser, so BoxError
// carries its exact Status into the wire envelope instead of collapsing it
// to the Transient/Permanent binary.
func (e *Error) DispatchStatus() dispatchproto.Status { return e.Status }

func newError(op string, s dispatchproto.Status, err error) *Error {
	return &Error{Op: op, Status: s, Err: err}
}
