package dispatchcontext

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dispatchrun/dispatch-go/coroutine"
	"github.com/dispatchrun/dispatch-go/dispatchproto"
)

// Func is the shape a registered function is reduced to once its input has
// been unboxed: take the input value, return an output value or error.
// Await, Gather, Any, Race, AllCompleted, NOfM and TailCall on the Context
// it is given are the only ways it may suspend.
type Func func(*Context, any) (any, error)

// Context is the durable-coroutine-side handle a registered function
// receives (spec.md §4.F). It wraps a coroutine.Context[Directive,
// PollOutcome]: every suspension primitive below yields exactly one
// Directive and, on a future resume, fast-forwards straight to the
// PollOutcome the Engine resolved for it, per coroutine's replay model.
type Context struct {
	co    coroutine.Coroutine[Directive, PollOutcome]
	inner *coroutine.Context[Directive, PollOutcome]

	cancel *CancelScope

	input     any
	exitValue any
	exitErr   error
}

// New builds a Context that will run fn with input the first time its
// Engine drives it to completion, or fast-forward through previously
// resolved suspension points on replay.
func New(fn Func, input any, cancel *CancelScope) *Context {
	c := &Context{input: input, cancel: cancel}
	c.co = coroutine.New(func(_ *coroutine.Context[Directive, PollOutcome]) {
		out, err := fn(c, c.input)
		c.exitValue, c.exitErr = out, err
	})
	c.inner = c.co.Context()
	return c
}

// Restore rebuilds a Context from state previously captured by
// MarshalAppend: the original input plus every frame the coroutine had
// captured at that point. Next will replay fn from the top, returning the
// stored result at each already-Completed frame, until it reaches the
// frame the caller still needs to Resolve.
func Restore(fn Func, state []byte, cancel *CancelScope) (*Context, error) {
	c := New(fn, nil, cancel)
	if _, err := c.Unmarshal(state); err != nil {
		return nil, err
	}
	return c, nil
}

// Next drives the coroutine until it either yields a new Directive
// (returns true; read it with LastDirective) or runs to completion
// (returns false; read ExitValue/ExitErr).
func (c *Context) Next() bool {
	return c.co.Next()
}

// LastDirective is the Directive most recently yielded. Only meaningful
// immediately after a Next call that returned true.
func (c *Context) LastDirective() Directive {
	return c.co.Recv()
}

// ExitValue is the value fn returned, once Next has returned false.
func (c *Context) ExitValue() any { return c.exitValue }

// ExitErr is the error fn returned, once Next has returned false.
func (c *Context) ExitErr() error { return c.exitErr }

// RemainingTime is how long this Context's cancellation scope has left
// before it expires, zero meaning unlimited. The Engine reads this to
// populate a Poll's MaxWait (spec.md §4.G).
func (c *Context) RemainingTime() time.Duration {
	return c.cancel.RemainingTime()
}

// Cancel marks this Context's cancellation scope cancelled, so every
// suspension primitive reached from here on returns ErrCancelled instead
// of yielding a new Directive.
func (c *Context) Cancel() {
	c.cancel.Cancel()
}

// PendingFrame is the index of the frame currently awaiting resolution.
// Valid only when the most recent Next call returned true: that frame is
// always the last one in the stack, since nothing past it has been reached
// yet.
func (c *Context) PendingFrame() int {
	return len(c.inner.Frames) - 1
}

// Resolve sets the outcome of the suspension point at frame index, so the
// next Next call fast-forwards past it instead of re-suspending there.
func (c *Context) Resolve(index int, outcome PollOutcome) {
	c.inner.Resolve(index, outcome)
}

// MarshalAppend captures this Context's entire durable state: the input it
// was created with, so a fresh replay elsewhere re-derives the same
// control flow up to the first unresolved suspension, followed by the
// coroutine's captured frame stack.
func (c *Context) MarshalAppend(b []byte) ([]byte, error) {
	env, err := dispatchproto.Box(c.input)
	if err != nil {
		return nil, fmt.Errorf("dispatchcontext: marshal input: %w", err)
	}
	eb := dispatchproto.MarshalTypedEnvelope(nil, env)
	b = binary.AppendVarint(b, int64(len(eb)))
	b = append(b, eb...)
	return c.inner.MarshalAppend(b)
}

// Unmarshal restores state captured by MarshalAppend, overwriting this
// Context's input and frame stack.
func (c *Context) Unmarshal(b []byte) (int, error) {
	length, n := binary.Varint(b)
	if n <= 0 {
		return 0, fmt.Errorf("dispatchcontext: invalid context input length")
	}
	if int64(n)+length > int64(len(b)) {
		return 0, fmt.Errorf("dispatchcontext: truncated context input")
	}

	env, err := dispatchproto.UnmarshalTypedEnvelope(b[n : n+int(length)])
	if err != nil {
		return 0, err
	}
	input, err := dispatchproto.Unbox(env)
	if err != nil {
		return 0, fmt.Errorf("dispatchcontext: unmarshal input: %w", err)
	}
	c.input = input
	n += int(length)

	fn, err := c.inner.Unmarshal(b[n:])
	if err != nil {
		return 0, err
	}
	return n + fn, nil
}

// Await suspends until call completes, returning its unboxed result or the
// error it failed with.
func (c *Context) Await(call dispatchproto.Call) (any, error) {
	results, err := c.awaitAll([]dispatchproto.Call{call}, dispatchproto.PolicyAll)
	if err != nil {
		return nil, err
	}
	return unboxResult(results[0])
}

// Gather suspends until every call has completed, returning their unboxed
// results in submission order. The first error encountered in that order
// is returned and the remaining results are discarded.
func (c *Context) Gather(calls ...dispatchproto.Call) ([]any, error) {
	results, err := c.awaitAll(calls, dispatchproto.PolicyAll)
	if err != nil {
		return nil, err
	}
	values := make([]any, len(results))
	for i, r := range results {
		v, rerr := unboxResult(r)
		if rerr != nil {
			return nil, rerr
		}
		values[i] = v
	}
	return values, nil
}

// Any suspends until at least one call succeeds, returning its unboxed
// result. If every call fails, Any returns an error joining all of them.
func (c *Context) Any(calls ...dispatchproto.Call) (any, error) {
	results, err := c.awaitAll(calls, dispatchproto.PolicyAny)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, r := range results {
		if r.Output != nil {
			return unboxResult(r)
		}
		_, rerr := unboxResult(r)
		errs = append(errs, rerr)
	}
	return nil, fmt.Errorf("dispatchcontext: all %d calls failed: %w", len(calls), errors.Join(errs...))
}

// Race suspends until the calls settle and returns the outcome of the first
// call in submission order, success or failure.
//
// This port resolves a directive's whole result set in a single Poll round
// trip rather than streaming partial PollResults across several
// RunRequests, and the Engine reorders that batch by correlation id before
// resolving it, so the order in which the scheduler delivered the results
// is not visible here: Race reports the first submitted call's outcome, not
// the one that completed first (see DESIGN.md). That
// same simplification makes dispatchproto.PolicyFirstCompleted
// operationally identical to PolicyRace in this engine — neither can
// actually let the losing calls keep running unobserved the way
// asyncio.wait's FIRST_COMPLETED does, since there is nothing left running
// once a batch comes back — so Race is this SDK's single exposed entry
// point for both; the Engine still computes MinResults correctly for
// either wire value (see DESIGN.md).
func (c *Context) Race(calls ...dispatchproto.Call) (any, error) {
	results, err := c.awaitAll(calls, dispatchproto.PolicyRace)
	if err != nil {
		return nil, err
	}
	return unboxResult(results[0])
}

// Outcome is one element of the slice AllCompleted returns: exactly one of
// Value/Err is set, mirroring the CallResult it was unboxed from.
type Outcome struct {
	Value any
	Err   error
}

// AllCompleted suspends until every call has settled, returning a
// value/error pair per call in submission order without failing fast on
// the first error the way Gather does.
func (c *Context) AllCompleted(calls ...dispatchproto.Call) ([]Outcome, error) {
	results, err := c.awaitAll(calls, dispatchproto.PolicyAll)
	if err != nil {
		return nil, err
	}
	outcomes := make([]Outcome, len(results))
	for i, r := range results {
		v, rerr := unboxResult(r)
		outcomes[i] = Outcome{Value: v, Err: rerr}
	}
	return outcomes, nil
}

// NOfM suspends until at least n of the calls have succeeded, returning
// their unboxed values in submission order alongside the outcome of every
// other call that had also settled by the time the batch came back. It
// fails once enough calls have failed to make n successes impossible.
//
// Like Race, this resolves the whole batch in one Poll round trip rather
// than stopping the instant the nth success arrives, so "enough have
// failed" and "n have succeeded" are both evaluated against the complete
// batch rather than a true early cutoff (see DESIGN.md).
func (c *Context) NOfM(n int, calls ...dispatchproto.Call) ([]Outcome, error) {
	if n <= 0 || n > len(calls) {
		return nil, fmt.Errorf("dispatchcontext: NOfM: n=%d out of range for %d calls", n, len(calls))
	}

	results, err := c.awaitAllN(calls, dispatchproto.PolicyNOfM, n)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(results))
	succeeded := 0
	for i, r := range results {
		v, rerr := unboxResult(r)
		outcomes[i] = Outcome{Value: v, Err: rerr}
		if rerr == nil {
			succeeded++
		}
	}
	if succeeded < n {
		return nil, fmt.Errorf("dispatchcontext: NOfM: only %d of %d required successes, out of %d calls", succeeded, n, len(calls))
	}
	return outcomes, nil
}

// TailCall replaces the running coroutine with call: it never returns to
// its caller. The Engine discards this coroutine's state once it observes
// the directive (spec.md §4.D).
func (c *Context) TailCall(call dispatchproto.Call) {
	c.inner.Yield(Directive{TailCall: &call})
}

func (c *Context) awaitAll(calls []dispatchproto.Call, policy dispatchproto.GatherPolicy) ([]dispatchproto.CallResult, error) {
	return c.awaitAllN(calls, policy, 0)
}

func (c *Context) awaitAllN(calls []dispatchproto.Call, policy dispatchproto.GatherPolicy, n int) ([]dispatchproto.CallResult, error) {
	// A suspension point already resolved on an earlier run replays its
	// stored outcome even once the scope is cancelled; only a new
	// suspension is refused.
	next := c.inner.FP + 1
	resolved := next < len(c.inner.Frames) && c.inner.Frames[next].State == coroutine.Completed
	if !resolved && c.cancel.Cancelled() {
		return nil, ErrCancelled
	}
	outcome := c.inner.Yield(Directive{Children: calls, Policy: policy, N: n})
	if outcome.Error != nil {
		e, err := dispatchproto.UnboxError(*outcome.Error)
		if err != nil {
			return nil, fmt.Errorf("dispatchcontext: unbox scheduler error: %w", err)
		}
		return nil, e
	}
	return outcome.Results, nil
}

func unboxResult(r dispatchproto.CallResult) (any, error) {
	if r.Error != nil {
		e, err := dispatchproto.UnboxError(*r.Error)
		if err != nil {
			return nil, fmt.Errorf("dispatchcontext: unbox call error: %w", err)
		}
		return nil, e
	}
	if r.Output == nil {
		return nil, fmt.Errorf("dispatchcontext: call result has neither output nor error")
	}
	return dispatchproto.Unbox(*r.Output)
}
