// Package dispatch implements a client SDK for a hosted durable execution
// service: register one-shot functions and durable coroutines, dispatch
// calls to them through the Local Client, and let the Run-Loop Engine drive
// a coroutine's suspensions and resumptions across however many processes
// its lifetime spans.
//
// A typical program registers its functions against DefaultRegistry at
// init time, builds an Engine over it, and exposes Engine.Handle behind
// whatever HTTP framework it already uses; the scheduler on the other end
// calls that endpoint with a RunRequest each time the function needs to
// run or resume.
package dispatch
