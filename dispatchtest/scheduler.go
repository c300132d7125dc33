// Package dispatchtest provides an in-memory stand-in for the Dispatch
// scheduler, so a registered function can be exercised end to end —
// including its Poll/resume round trips — without a live service. It is
// grounded in original_source/test.py's Service: where that harness drives
// the same loop with aiohttp route handlers and asyncio tasks, this one
// drives it with direct calls into an Engine and one goroutine per
// in-flight child call.
package dispatchtest

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dispatchrun/dispatch-go/dispatchproto"
)

// Handler is the shape an Engine exposes to the Scheduler: run exactly one
// step of one function given a RunRequest. *dispatch.Engine satisfies this
// without dispatchtest needing to import the root package (which would
// cycle back here through dispatchtest's own use in that package's tests).
type Handler interface {
	Handle(ctx context.Context, req *dispatchproto.RunRequest) (*dispatchproto.RunResponse, error)
}

// Scheduler drives a function registered on some Handler to completion,
// resolving every Poll it emits by recursively scheduling the child Calls
// against the same Handler (spec.md's supplemented "local service" test
// tool, original_source/test.py's Service.dispatch/Service.call).
type Scheduler struct {
	Handler Handler

	// MaxSteps bounds how many Handle calls a single Run will make,
	// counting those made for the child calls it fans out to, before it
	// gives up, guarding a test against an infinitely suspending
	// coroutine. Zero means unbounded.
	MaxSteps int
}

// NewScheduler builds a Scheduler that drives h.
func NewScheduler(h Handler) *Scheduler {
	return &Scheduler{Handler: h}
}

// Run drives function to completion, starting it with input, and returns
// its unboxed result or the error it exited with.
func (s *Scheduler) Run(ctx context.Context, function string, input any) (any, error) {
	env, err := dispatchproto.Box(input)
	if err != nil {
		return nil, fmt.Errorf("dispatchtest: box input: %w", err)
	}
	result, err := s.run(ctx, function, &dispatchproto.RunRequest{Function: function, Input: &env})
	if err != nil {
		return nil, err
	}
	return unbox(result)
}

// stepsKey carries the Handle-call counter shared by one Run and all of
// its child runs.
type stepsKey struct{}

// run drives function through as many Poll round trips as it takes to
// reach an Exit, returning the terminal CallResult.
func (s *Scheduler) run(ctx context.Context, function string, req *dispatchproto.RunRequest) (dispatchproto.CallResult, error) {
	steps, _ := ctx.Value(stepsKey{}).(*atomic.Int64)
	if steps == nil {
		steps = new(atomic.Int64)
		ctx = context.WithValue(ctx, stepsKey{}, steps)
	}
	for s.MaxSteps == 0 || steps.Add(1) <= int64(s.MaxSteps) {
		resp, err := s.Handler.Handle(ctx, req)
		if err != nil {
			return dispatchproto.CallResult{}, fmt.Errorf("dispatchtest: run %q: %w", function, err)
		}

		switch {
		case resp.Exit != nil && resp.Exit.TailCall != nil:
			tail := resp.Exit.TailCall
			req = &dispatchproto.RunRequest{Function: tail.Function, Input: &tail.Input}
			function = tail.Function
			continue

		case resp.Exit != nil:
			return *resp.Exit.Result, nil

		case resp.Poll != nil:
			results, err := s.dispatchChildren(ctx, resp.Poll.Calls)
			if err != nil {
				return dispatchproto.CallResult{}, err
			}
			req = &dispatchproto.RunRequest{
				Function: function,
				PollResult: &dispatchproto.PollResult{
					CoroutineState: resp.Poll.CoroutineState,
					Results:        results,
				},
			}

		default:
			return dispatchproto.CallResult{}, fmt.Errorf("dispatchtest: run %q: response carries neither exit nor poll", function)
		}
	}
	return dispatchproto.CallResult{}, fmt.Errorf("dispatchtest: run %q: exceeded %d steps without completing", function, s.MaxSteps)
}

// dispatchChildren runs every call concurrently, as a live scheduler would
// dispatch them to however many workers are available, and collects their
// results in submission order.
func (s *Scheduler) dispatchChildren(ctx context.Context, calls []dispatchproto.Call) ([]dispatchproto.CallResult, error) {
	results := make([]dispatchproto.CallResult, len(calls))

	group, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		group.Go(func() error {
			result, err := s.run(gctx, call.Function, &dispatchproto.RunRequest{Function: call.Function, Input: &call.Input})
			if err != nil {
				return err
			}
			result.CorrelationID = call.CorrelationID
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func unbox(r dispatchproto.CallResult) (any, error) {
	if r.Error != nil {
		e, err := dispatchproto.UnboxError(*r.Error)
		if err != nil {
			return nil, fmt.Errorf("dispatchtest: unbox error: %w", err)
		}
		return nil, e
	}
	if r.Output == nil {
		return nil, fmt.Errorf("dispatchtest: call result has neither output nor error")
	}
	return dispatchproto.Unbox(*r.Output)
}
