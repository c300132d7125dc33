package dispatchproto

import "time"

// Call is produced when a durable coroutine awaits a child, or when the
// Local Client originates work directly (spec.md §3).
type Call struct {
	CorrelationID uint64
	Endpoint      string
	Function      string
	Input         TypedEnvelope
	Expiration    time.Duration // zero means unset
	Version       string
}

// CallResult carries the outcome of exactly one Call back to the coroutine
// that awaited it. Exactly one of Output/Error is set when Completed.
type CallResult struct {
	CorrelationID uint64
	Output        *TypedEnvelope
	Error         *TypedEnvelope
	DispatchID    string
}

// Completed reports whether the result carries an output or an error, as
// opposed to being absent (e.g. dropped by cancellation bookkeeping).
func (r CallResult) Completed() bool {
	return r.Output != nil || r.Error != nil
}

// GatherPolicy selects how a Gather directive's min_results is computed
// and how the concurrency primitive that issued it should resolve
// once results start arriving (spec.md §4.D, §4.F).
type GatherPolicy int

const (
	PolicyAll GatherPolicy = iota
	PolicyAny
	PolicyRace
	PolicyFirstCompleted
	PolicyNOfM
)

// Poll is the directive a run emits when it must wait on one or more
// child calls before it can continue.
type Poll struct {
	CoroutineState []byte
	Calls          []Call
	MinResults     uint32
	MaxResults     uint32
	MaxWait        time.Duration
}

// Exit is the directive a run emits when it has terminated: either with a
// final result, or by tail-calling into a replacement function.
type Exit struct {
	Result   *CallResult
	TailCall *Call
}

// RunRequest carries either an initial Input or a prior PollResult, never
// both (spec.md §3). Expiration is the time remaining before this
// execution's cancellation scope elapses, as tracked by the scheduler
// (zero means unset); the scheduler resends it, recomputed against its own
// clock, on every RunRequest for a given coroutine so a restored Context
// always learns its true remaining time rather than one derived from a
// restarted process's own clock.
type RunRequest struct {
	Function       string
	Input          *TypedEnvelope
	PollResult     *PollResult
	CoroutineState []byte
	Expiration     time.Duration
}

// PollResult is the payload a RunRequest carries back in response to a
// prior Poll: results delivered in the order the scheduler completed
// them, plus an optional scheduler-injected error (e.g. on cancellation).
type PollResult struct {
	CoroutineState []byte
	Results        []CallResult
	Error          *TypedEnvelope
}

// RunResponse carries exactly one of Exit or Poll, plus a Status.
type RunResponse struct {
	Status Status
	Exit   *Exit
	Poll   *Poll
}

// DispatchRequest is the Local Client's submission to the Dispatch API:
// one or more Calls to originate (spec.md §4.H).
type DispatchRequest struct {
	Calls []Call
}

// DispatchResponse carries one dispatch ID per Call in the request, in the
// same order.
type DispatchResponse struct {
	DispatchIDs []string
}
