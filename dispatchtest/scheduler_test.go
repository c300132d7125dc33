package dispatchtest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchrun/dispatch-go/dispatchproto"
	"github.com/dispatchrun/dispatch-go/dispatchtest"
)

// fakeHandler is a minimal Handler that completes immediately, doubling an
// int input, so the Scheduler's run loop can be exercised without the root
// package's Engine (which itself has its own dispatchtest-based tests).
type fakeHandler struct {
	calls int
}

func (h *fakeHandler) Handle(ctx context.Context, req *dispatchproto.RunRequest) (*dispatchproto.RunResponse, error) {
	h.calls++
	in, err := dispatchproto.Unbox(*req.Input)
	if err != nil {
		return nil, err
	}
	out, err := dispatchproto.Box(in.(int) * 2)
	if err != nil {
		return nil, err
	}
	return &dispatchproto.RunResponse{
		Status: dispatchproto.StatusOK,
		Exit:   &dispatchproto.Exit{Result: &dispatchproto.CallResult{Output: &out}},
	}, nil
}

func TestSchedulerRunCompletesImmediateFunction(t *testing.T) {
	h := &fakeHandler{}
	s := dispatchtest.NewScheduler(h)

	out, err := s.Run(context.Background(), "double", 21)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, 1, h.calls)
}

// pollOnceHandler polls once for a child call then exits with its result
// plus one, exercising the Scheduler's dispatchChildren fan-out.
type pollOnceHandler struct{}

func (pollOnceHandler) Handle(ctx context.Context, req *dispatchproto.RunRequest) (*dispatchproto.RunResponse, error) {
	if req.Input != nil {
		in, err := dispatchproto.Unbox(*req.Input)
		if err != nil {
			return nil, err
		}
		env, err := dispatchproto.Box(in)
		if err != nil {
			return nil, err
		}
		return &dispatchproto.RunResponse{
			Status: dispatchproto.StatusOK,
			Poll: &dispatchproto.Poll{
				CoroutineState: []byte("state"),
				Calls:          []dispatchproto.Call{{Function: "child", Input: env, CorrelationID: 1}},
				MinResults:     1,
				MaxResults:     1,
			},
		}, nil
	}

	result := req.PollResult.Results[0]
	v, err := dispatchproto.Unbox(*result.Output)
	if err != nil {
		return nil, err
	}
	out, err := dispatchproto.Box(v.(int) + 1)
	if err != nil {
		return nil, err
	}
	return &dispatchproto.RunResponse{
		Status: dispatchproto.StatusOK,
		Exit:   &dispatchproto.Exit{Result: &dispatchproto.CallResult{Output: &out}},
	}, nil
}

// childEchoHandler just echoes its input back as the exit result, acting
// as the child function pollOnceHandler dispatches.
type childEchoHandler struct{ inner pollOnceHandler }

func (h childEchoHandler) Handle(ctx context.Context, req *dispatchproto.RunRequest) (*dispatchproto.RunResponse, error) {
	if req.Function == "child" {
		return &dispatchproto.RunResponse{
			Status: dispatchproto.StatusOK,
			Exit:   &dispatchproto.Exit{Result: &dispatchproto.CallResult{Output: req.Input}},
		}, nil
	}
	return h.inner.Handle(ctx, req)
}

func TestSchedulerResolvesPollAgainstChildCalls(t *testing.T) {
	s := dispatchtest.NewScheduler(childEchoHandler{})
	out, err := s.Run(context.Background(), "parent", 9)
	require.NoError(t, err)
	assert.Equal(t, 10, out)
}

func TestSchedulerMaxStepsBounds(t *testing.T) {
	h := &loopingHandler{}
	s := &dispatchtest.Scheduler{Handler: h, MaxSteps: 2}

	_, err := s.Run(context.Background(), "loop", 0)
	require.Error(t, err)
}

// loopingHandler always polls for another child call and never exits,
// exercising the Scheduler's MaxSteps guard.
type loopingHandler struct{}

func (loopingHandler) Handle(ctx context.Context, req *dispatchproto.RunRequest) (*dispatchproto.RunResponse, error) {
	env, err := dispatchproto.Box(0)
	if err != nil {
		return nil, err
	}
	return &dispatchproto.RunResponse{
		Status: dispatchproto.StatusOK,
		Poll: &dispatchproto.Poll{
			CoroutineState: []byte("state"),
			Calls:          []dispatchproto.Call{{Function: "child", Input: env, CorrelationID: 1}},
			MinResults:     1,
			MaxResults:     1,
		},
	}, nil
}
