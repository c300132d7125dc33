package dispatch

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dispatchrun/dispatch-go/dispatchcontext"
	"github.com/dispatchrun/dispatch-go/dispatchproto"
)

// errIncompatibleState marks a restore failure caused by a snapshot whose
// function version doesn't match the version currently registered
// (spec.md §4.E, §9's "Version skew"), as opposed to a merely corrupt or
// truncated snapshot.
var errIncompatibleState = errors.New("dispatch: coroutine snapshot version does not match the registered function version")

// Engine is the Run-Loop Engine (spec.md §4.G): it looks up the requested
// function and drives exactly one RunRequest through it, translating
// whatever suspension or termination the function reaches into the
// RunResponse a scheduler expects back.
type Engine struct {
	Registry *Registry
}

// NewEngine builds an Engine backed by r, or DefaultRegistry if r is nil.
func NewEngine(r *Registry) *Engine {
	if r == nil {
		r = DefaultRegistry
	}
	return &Engine{Registry: r}
}

// Handle implements the endpoint a Dispatch scheduler calls into: look up
// req.Function and run it for exactly one step.
func (e *Engine) Handle(ctx context.Context, req *dispatchproto.RunRequest) (*dispatchproto.RunResponse, error) {
	fd, err := e.Registry.Lookup(req.Function)
	if err != nil {
		return &dispatchproto.RunResponse{Status: dispatchproto.StatusNotFound}, err
	}
	resp, err := fd.entry(*req)
	return &resp, err
}

// runRequest is the single-step algorithm shared by every registered
// function, one-shot or durable alike: restore-or-create the function's
// Context, drive it to its next suspension or exit, and translate that
// into a RunResponse (spec.md §4.G). version is the currently registered
// function's version, checked against any resumed snapshot's own version.
func runRequest(fn dispatchcontext.Func, version string, req dispatchproto.RunRequest) (dispatchproto.RunResponse, error) {
	dc, err := primeContext(fn, version, req)
	if err != nil {
		if errors.Is(err, errIncompatibleState) {
			return dispatchproto.RunResponse{Status: dispatchproto.StatusIncompatibleState}, err
		}
		return dispatchproto.RunResponse{Status: dispatchproto.StatusInvalidArgument}, err
	}

	if !dc.Next() {
		return exitResponse(dc), nil
	}

	directive := dc.LastDirective()
	if directive.TailCall != nil {
		return dispatchproto.RunResponse{
			Status: dispatchproto.StatusOK,
			Exit:   &dispatchproto.Exit{TailCall: directive.TailCall},
		}, nil
	}

	calls := make([]dispatchproto.Call, len(directive.Children))
	for i, call := range directive.Children {
		call.CorrelationID = uint64(i + 1)
		calls[i] = call
	}

	state, err := dc.MarshalAppend(nil)
	if err != nil {
		return dispatchproto.RunResponse{Status: dispatchproto.StatusInvalidResponse}, err
	}
	state = prependStateVersion(version, state)

	minResults := gatherMinResults(directive, len(calls))

	return dispatchproto.RunResponse{
		Status: dispatchproto.StatusOK,
		Poll: &dispatchproto.Poll{
			CoroutineState: state,
			Calls:          calls,
			MinResults:     minResults,
			MaxResults:     uint32(len(calls)),
			MaxWait:        dc.RemainingTime(),
		},
	}, nil
}

// gatherMinResults computes Poll.MinResults from the policy a suspension
// primitive issued its Directive with (spec.md §4.G): 1 for Any/Race/
// FirstCompleted, the full batch for All, and directive.N for NOfM.
func gatherMinResults(directive dispatchcontext.Directive, n int) uint32 {
	switch directive.Policy {
	case dispatchproto.PolicyAny, dispatchproto.PolicyRace, dispatchproto.PolicyFirstCompleted:
		return 1
	case dispatchproto.PolicyNOfM:
		return uint32(directive.N)
	default: // PolicyAll
		return uint32(n)
	}
}

// primeContext restores a Context from req.PollResult.CoroutineState
// (falling back to req.CoroutineState when the PollResult carries none) and
// resolves its pending frame when req carries a PollResult, or creates a
// fresh one when
// req carries the initial Input. spec.md §3 guarantees exactly one of the
// two is set.
func primeContext(fn dispatchcontext.Func, version string, req dispatchproto.RunRequest) (*dispatchcontext.Context, error) {
	switch {
	case req.Input != nil:
		input, err := dispatchproto.Unbox(*req.Input)
		if err != nil {
			return nil, fmt.Errorf("dispatch: unbox input: %w", err)
		}
		return dispatchcontext.New(fn, input, dispatchcontext.NewCancelScope(req.Expiration)), nil

	case req.PollResult != nil:
		coroutineState := req.PollResult.CoroutineState
		if len(coroutineState) == 0 {
			coroutineState = req.CoroutineState
		}
		snapshotVersion, state, err := splitStateVersion(coroutineState)
		if err != nil {
			return nil, fmt.Errorf("dispatch: read coroutine state version: %w", err)
		}
		if snapshotVersion != version {
			return nil, fmt.Errorf("%w: snapshot version %q, registered version %q", errIncompatibleState, snapshotVersion, version)
		}

		dc, err := dispatchcontext.Restore(fn, state, dispatchcontext.NewCancelScope(req.Expiration))
		if err != nil {
			return nil, fmt.Errorf("dispatch: restore coroutine state: %w", err)
		}
		if req.PollResult.Error != nil {
			dc.Cancel()
		}
		outcome := dispatchcontext.PollOutcome{
			Results: reorderByCorrelationID(req.PollResult.Results),
			Error:   req.PollResult.Error,
		}
		dc.Resolve(dc.PendingFrame(), outcome)
		return dc, nil

	default:
		return nil, fmt.Errorf("dispatch: run request has neither input nor poll_result")
	}
}

// prependStateVersion tags coroutine state with the function version it
// was captured under, so a later restore can refuse it if the registered
// function has since moved on to a different version (spec.md §4.E).
func prependStateVersion(version string, state []byte) []byte {
	b := binary.AppendVarint(nil, int64(len(version)))
	b = append(b, version...)
	return append(b, state...)
}

// splitStateVersion reverses prependStateVersion.
func splitStateVersion(b []byte) (version string, state []byte, err error) {
	length, n := binary.Varint(b)
	if n <= 0 {
		return "", nil, fmt.Errorf("invalid version prefix")
	}
	if int64(n)+length > int64(len(b)) {
		return "", nil, fmt.Errorf("truncated version prefix")
	}
	return string(b[n : n+int(length)]), b[n+int(length):], nil
}

// reorderByCorrelationID places each result at correlation_id-1, so a
// Gather's submission order survives however the scheduler chose to
// deliver results.
func reorderByCorrelationID(results []dispatchproto.CallResult) []dispatchproto.CallResult {
	ordered := make([]dispatchproto.CallResult, len(results))
	for _, r := range results {
		if idx := int(r.CorrelationID) - 1; idx >= 0 && idx < len(ordered) {
			ordered[idx] = r
		}
	}
	return ordered
}

func exitResponse(dc *dispatchcontext.Context) dispatchproto.RunResponse {
	if err := dc.ExitErr(); err != nil {
		env, berr := dispatchproto.BoxError(err)
		if berr != nil {
			return dispatchproto.RunResponse{Status: dispatchproto.StatusInvalidResponse}
		}
		return dispatchproto.RunResponse{
			Status: dispatchproto.ClassifyError(err),
			Exit:   &dispatchproto.Exit{Result: &dispatchproto.CallResult{Error: &env}},
		}
	}

	env, err := dispatchproto.Box(dc.ExitValue())
	if err != nil {
		errEnv, _ := dispatchproto.BoxError(err)
		return dispatchproto.RunResponse{
			Status: dispatchproto.StatusInvalidResponse,
			Exit:   &dispatchproto.Exit{Result: &dispatchproto.CallResult{Error: &errEnv}},
		}
	}
	return dispatchproto.RunResponse{
		Status: dispatchproto.StatusOK,
		Exit:   &dispatchproto.Exit{Result: &dispatchproto.CallResult{Output: &env}},
	}
}
