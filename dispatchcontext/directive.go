// Package dispatchcontext implements the durable-coroutine-side handle a
// registered function receives (the ways it can suspend: Await, Gather,
// Any, Race, AllCompleted, NOfM, plus TailCall) and the Directive it yields
// (spec.md §4.F). The Run-Loop Engine that drives one RunRequest through it
// lives in the root dispatch package.
package dispatchcontext

import "github.com/dispatchrun/dispatch-go/dispatchproto"

// Directive is the value a durable coroutine yields at each suspension
// point. It is never itself serialized: only the Poll/Exit/TailCall it
// gets translated into by the Engine crosses the wire.
type Directive struct {
	// Children are the calls this directive is awaiting. A plain Await
	// yields a Directive with exactly one child; a combinator yields one
	// with however many it was given.
	Children []dispatchproto.Call

	// Policy tells the Engine how to compute MinResults and how the
	// combinator that issued this Directive wants its eventual resume
	// reflected back (spec.md §4.D's Gather union member).
	Policy dispatchproto.GatherPolicy

	// N is the number of results required before the Engine may resolve
	// this Directive, meaningful only when Policy is PolicyNOfM.
	N int

	// TailCall is set instead of Children/Policy when the coroutine is
	// requesting its own replacement (spec.md §4.D's TailCall directive).
	// A Directive with TailCall set is terminal: the coroutine that
	// yielded it is never resumed.
	TailCall *dispatchproto.Call
}
