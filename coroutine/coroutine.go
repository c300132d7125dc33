package coroutine

// Context is threaded explicitly into a coroutine's entry point and into
// every helper it calls that might Yield. Unlike the teacher's original
// design, there is no ambient goroutine-local lookup: a durable coroutine
// in this SDK is never run on more than one goroutine at a time (the
// engine that drives it is single-threaded cooperative per execution, per
// spec.md §5), so the caller always has the Context on hand already.
//
// R is the type of value a coroutine yields (its outgoing directive); S is
// the type of the value delivered back into it on resume (the directive's
// resolved result). S must be Serializable: a resumed frame's result has
// to survive round-tripping through Marshal/Unmarshal, since replay reads
// it back out of Storage every time execution passes that point again. R
// does not: it only ever exists transiently, for the duration of the
// Next() call that produced it.
type Context[R any, S Serializable] struct {
	recv R
	done bool
	stop bool

	entry func(*Context[R, S])

	Stack
}

// New creates a Coroutine which executes f as entry point. f receives the
// Context it should Yield through, directly or through anything it calls.
func New[R any, S Serializable](f func(*Context[R, S])) Coroutine[R, S] {
	return Coroutine[R, S]{ctx: &Context[R, S]{entry: f}}
}

// Yield suspends the coroutine at this exact call site, handing v to the
// driver. The call returns once the driver has resolved this specific
// await point (via Resolve, ahead of the Next() call that replays through
// it), yielding the value the driver resolved it with.
//
// Every call to Yield from the same coroutine execution, in program
// order, must be reached deterministically on replay: Yield identifies
// "this" await point purely by how many Yield calls preceded it, not by
// where in the source it lexically appears. A workflow that awaits
// conditionally must take the same branch on replay as it did originally.
func (c *Context[R, S]) Yield(v R) S {
	frame := c.Push()
	if frame.State == Completed {
		return frame.Get(0).(S)
	}
	if c.stop {
		panic("cannot yield from a coroutine that has been stopped")
	}
	frame.State = Suspended
	c.recv = v
	panic(unwind{})
}

// Resolve delivers the result of the await point at the given index (0
// for the first Yield call the coroutine ever made, 1 for the second,
// ...) so that the next Next() call's replay can pass through it. It must
// be called before Next(), for exactly the frame(s) the previous Next()
// call suspended on.
func (c *Context[R, S]) Resolve(index int, v S) {
	f := &c.Frames[index]
	f.Set(0, v)
	f.State = Completed
}

// Unwinding reports whether the topmost frame is suspended awaiting
// resolution (i.e. the coroutine just yielded rather than completed).
func (c *Context[R, S]) Unwinding() bool {
	return len(c.Frames) > 0 && c.Top().State == Suspended
}

type unwind struct{}

// MarshalAppend appends a serialized Context to the provided buffer. The
// function identity of the coroutine (its registered name and version)
// travels out of band, alongside this payload, since the caller already
// knows which function it's resuming.
func (c *Context[R, S]) MarshalAppend(b []byte) ([]byte, error) {
	return c.Stack.MarshalAppend(b)
}

// Unmarshal restores a Context's Stack from a buffer produced by
// MarshalAppend, returning the number of bytes consumed.
func (c *Context[R, S]) Unmarshal(b []byte) (int, error) {
	return c.Stack.Unmarshal(b)
}

// Coroutine is a durable, resumable computation.
type Coroutine[R any, S Serializable] struct {
	ctx *Context[R, S]
}

// Context returns the coroutine's Context, e.g. to Marshal/Unmarshal it or
// to Resolve an outstanding await before the next Next call.
func (c Coroutine[R, S]) Context() *Context[R, S] { return c.ctx }

// Recv returns the value the coroutine most recently yielded. Only valid
// after Next returned true.
func (c Coroutine[R, S]) Recv() R { return c.ctx.recv }

// Done reports whether the coroutine has run to completion.
func (c Coroutine[R, S]) Done() bool { return c.ctx.done }

// Stop makes the coroutine's next Yield that has no resolved result panic
// instead of suspending; Next re-raises that panic to its caller.
func (c Coroutine[R, S]) Stop() { c.ctx.stop = true }

// Next drives the coroutine forward until its next Yield, or until it
// returns. It reports whether the coroutine yielded (true) or completed
// (false).
//
// Each call replays the entry point from the top of the Go call stack:
// frames already marked Completed return their stored values immediately
// (via Yield's fast path) instead of re-executing the code that produced
// them, so only the code between the last await point and the next one
// actually runs. This is what makes a Coroutine interruptible at
// arbitrary points without a generated state machine, at the cost of
// requiring the entry point (and anything reachable from it) to reach the
// same sequence of Yield calls on replay that it reached originally.
func (c Coroutine[R, S]) Next() (hasNext bool) {
	ctx := c.ctx
	if ctx.done {
		return false
	}

	func() {
		defer func() {
			switch v := recover().(type) {
			case nil:
			case unwind:
			default:
				panic(v)
			}
		}()
		ctx.Stack.Reset()
		ctx.entry(ctx)
	}()

	if ctx.Unwinding() {
		hasNext = !ctx.stop
		ctx.done = ctx.stop
	} else {
		ctx.done = true
		hasNext = false
	}
	return hasNext
}
