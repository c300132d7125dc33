package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchrun/dispatch-go"
	"github.com/dispatchrun/dispatch-go/dispatchcontext"
	"github.com/dispatchrun/dispatch-go/dispatchproto"
	"github.com/dispatchrun/dispatch-go/dispatchtest"
)

func mustCall(t *testing.T, function string, input any) dispatchproto.Call {
	t.Helper()
	env, err := dispatchproto.Box(input)
	require.NoError(t, err)
	return dispatchproto.Call{Function: function, Input: env}
}

func callsFor(t *testing.T, function string, inputs []int) []dispatchproto.Call {
	t.Helper()
	calls := make([]dispatchproto.Call, len(inputs))
	for i, in := range inputs {
		calls[i] = mustCall(t, function, in)
	}
	return calls
}

func TestEngineRunsOneShotFunction(t *testing.T) {
	registry := dispatch.NewRegistry()
	square := dispatch.NewFunc("square", func(n int) (int, error) {
		return n * n, nil
	})
	require.NoError(t, square.Register(registry))

	engine := dispatch.NewEngine(registry)
	scheduler := dispatchtest.NewScheduler(engine)

	out, err := scheduler.Run(context.Background(), "square", 7)
	require.NoError(t, err)
	assert.Equal(t, 49, out)
}

func TestEngineDrivesCoroutineThroughSuspension(t *testing.T) {
	registry := dispatch.NewRegistry()

	double := dispatch.NewFunc("double", func(n int) (int, error) {
		return n * 2, nil
	})
	require.NoError(t, double.Register(registry))

	addOneThenDouble := dispatch.NewCoroutine("add-one-then-double", func(ctx *dispatchcontext.Context, n int) (int, error) {
		out, err := ctx.Await(mustCall(t, "double", n+1))
		if err != nil {
			return 0, err
		}
		return out.(int), nil
	})
	require.NoError(t, addOneThenDouble.Register(registry))

	engine := dispatch.NewEngine(registry)
	scheduler := dispatchtest.NewScheduler(engine)

	out, err := scheduler.Run(context.Background(), "add-one-then-double", 10)
	require.NoError(t, err)
	assert.Equal(t, 22, out)
}

func TestEngineGatherFansOutConcurrently(t *testing.T) {
	registry := dispatch.NewRegistry()

	double := dispatch.NewFunc("double2", func(n int) (int, error) {
		return n * 2, nil
	})
	require.NoError(t, double.Register(registry))

	sumOfDoubles := dispatch.NewCoroutine("sum-of-doubles", func(ctx *dispatchcontext.Context, ns []int) (int, error) {
		values, err := ctx.Gather(callsFor(t, "double2", ns)...)
		if err != nil {
			return 0, err
		}
		total := 0
		for _, v := range values {
			total += v.(int)
		}
		return total, nil
	})
	require.NoError(t, sumOfDoubles.Register(registry))

	engine := dispatch.NewEngine(registry)
	scheduler := dispatchtest.NewScheduler(engine)

	out, err := scheduler.Run(context.Background(), "sum-of-doubles", []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 12, out)
}

func TestEngineNOfMResolvesOnPartialSuccess(t *testing.T) {
	registry := dispatch.NewRegistry()

	flaky := dispatch.NewFunc("flaky", func(n int) (int, error) {
		if n < 0 {
			return 0, fmt.Errorf("negative input: %d", n)
		}
		return n * 10, nil
	})
	require.NoError(t, flaky.Register(registry))

	bestTwoOfThree := dispatch.NewCoroutine("best-two-of-three", func(ctx *dispatchcontext.Context, ns []int) (int, error) {
		outcomes, err := ctx.NOfM(2, callsFor(t, "flaky", ns)...)
		if err != nil {
			return 0, err
		}
		total := 0
		for _, o := range outcomes {
			if o.Err == nil {
				total += o.Value.(int)
			}
		}
		return total, nil
	})
	require.NoError(t, bestTwoOfThree.Register(registry))

	engine := dispatch.NewEngine(registry)
	scheduler := dispatchtest.NewScheduler(engine)

	out, err := scheduler.Run(context.Background(), "best-two-of-three", []int{1, -1, 2})
	require.NoError(t, err)
	assert.Equal(t, 30, out)
}

// TestEngineCancelsOnSchedulerTimeout drives the engine through a scheduler
// reporting the run's deadline elapsed while a gather was outstanding: the
// pending combinator sees the injected error, and once the scope is
// cancelled, any further suspension attempt fails immediately instead of
// emitting a new Poll.
func TestEngineCancelsOnSchedulerTimeout(t *testing.T) {
	registry := dispatch.NewRegistry()

	slow := dispatch.NewFunc("slow", func(n int) (int, error) {
		return n, nil
	})
	require.NoError(t, slow.Register(registry))

	waitsThenRetries := dispatch.NewCoroutine("waits-then-retries", func(ctx *dispatchcontext.Context, n int) (int, error) {
		_, err := ctx.Gather(mustCall(t, "slow", n), mustCall(t, "slow", n+1))
		if err == nil {
			return 0, fmt.Errorf("expected the gather to fail")
		}
		if _, err2 := ctx.Await(mustCall(t, "slow", n+2)); err2 == nil {
			return 0, fmt.Errorf("expected the post-cancellation await to fail")
		} else if !errors.Is(err2, dispatchcontext.ErrCancelled) {
			return 0, fmt.Errorf("expected ErrCancelled from the post-cancellation await, got %v", err2)
		}
		return 0, err
	})
	require.NoError(t, waitsThenRetries.Register(registry))

	engine := dispatch.NewEngine(registry)

	env, err := dispatchproto.Box(5)
	require.NoError(t, err)
	resp, err := engine.Handle(context.Background(), &dispatchproto.RunRequest{
		Function:   "waits-then-retries",
		Input:      &env,
		Expiration: time.Minute,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Poll)

	timeoutEnv, err := dispatchproto.BoxError(&dispatchproto.Error{
		Type:    "TimeoutError",
		Message: "deadline exceeded",
		Status:  dispatchproto.StatusTimeout,
	})
	require.NoError(t, err)

	resp, err = engine.Handle(context.Background(), &dispatchproto.RunRequest{
		Function: "waits-then-retries",
		PollResult: &dispatchproto.PollResult{
			CoroutineState: resp.Poll.CoroutineState,
			Error:          &timeoutEnv,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Exit)
	assert.Equal(t, dispatchproto.StatusTimeout, resp.Status)
}

// TestEngineRefusesSnapshotFromADifferentVersion drives a coroutine to a
// suspension under one registered version, then resumes its snapshot
// against the same function name registered under a different version —
// simulating a redeploy between the Poll and its resume — and expects
// INCOMPATIBLE_STATE rather than a restore onto the new body.
func TestEngineRefusesSnapshotFromADifferentVersion(t *testing.T) {
	registryV1 := dispatch.NewRegistry()
	doubleV1 := dispatch.NewFunc("double3", func(n int) (int, error) { return n * 2, nil })
	require.NoError(t, doubleV1.Register(registryV1))

	coroV1 := dispatch.NewCoroutine("incrementer", func(ctx *dispatchcontext.Context, n int) (int, error) {
		out, err := ctx.Await(mustCall(t, "double3", n))
		if err != nil {
			return 0, err
		}
		return out.(int), nil
	})
	require.NoError(t, coroV1.Register(registryV1, dispatch.WithVersion("v1")))

	engineV1 := dispatch.NewEngine(registryV1)
	env, err := dispatchproto.Box(3)
	require.NoError(t, err)
	resp, err := engineV1.Handle(context.Background(), &dispatchproto.RunRequest{Function: "incrementer", Input: &env})
	require.NoError(t, err)
	require.NotNil(t, resp.Poll)

	registryV2 := dispatch.NewRegistry()
	coroV2 := dispatch.NewCoroutine("incrementer", func(ctx *dispatchcontext.Context, n int) (int, error) {
		out, err := ctx.Await(mustCall(t, "double3", n))
		if err != nil {
			return 0, err
		}
		return out.(int), nil
	})
	require.NoError(t, coroV2.Register(registryV2, dispatch.WithVersion("v2")))
	engineV2 := dispatch.NewEngine(registryV2)

	outputEnv, err := dispatchproto.Box(6)
	require.NoError(t, err)
	result := dispatchproto.CallResult{CorrelationID: 1, Output: &outputEnv}

	resp, err = engineV2.Handle(context.Background(), &dispatchproto.RunRequest{
		Function: "incrementer",
		PollResult: &dispatchproto.PollResult{
			CoroutineState: resp.Poll.CoroutineState,
			Results:        []dispatchproto.CallResult{result},
		},
	})
	require.Error(t, err)
	assert.Equal(t, dispatchproto.StatusIncompatibleState, resp.Status)
}

func TestEngineLookupMissingFunctionFails(t *testing.T) {
	registry := dispatch.NewRegistry()
	engine := dispatch.NewEngine(registry)
	scheduler := dispatchtest.NewScheduler(engine)

	_, err := scheduler.Run(context.Background(), "does-not-exist", nil)
	require.Error(t, err)
}
