package coroutine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// add is a trivial durable coroutine: it yields twice, adding the value it
// receives back each time to a running total, then yields the total once
// more.
func add(ctx *Context[Int, Int]) {
	total := Int(0)
	total += ctx.Yield(total)
	total += ctx.Yield(total)
	ctx.Yield(total) // final yield carries the sum; coroutine never resumes past it in this test
}

func TestCoroutineNext(t *testing.T) {
	co := New(add)

	require.True(t, co.Next())
	assert.Equal(t, Int(0), co.Recv())

	co.Context().Resolve(0, Int(10))
	require.True(t, co.Next())
	assert.Equal(t, Int(10), co.Recv())

	co.Context().Resolve(1, Int(5))
	require.True(t, co.Next())
	assert.Equal(t, Int(15), co.Recv())

	assert.False(t, co.Done())
}

func TestCoroutineCompletion(t *testing.T) {
	co := New(func(ctx *Context[Int, Int]) {
		ctx.Yield(Int(1))
	})

	require.True(t, co.Next())
	co.Context().Resolve(0, Int(0))
	require.False(t, co.Next())
	assert.True(t, co.Done())
}

func TestCoroutineMarshalRoundTrip(t *testing.T) {
	co := New(add)

	require.True(t, co.Next())
	co.Context().Resolve(0, Int(10))
	require.True(t, co.Next())

	b, err := co.Context().MarshalAppend(nil)
	require.NoError(t, err)

	restored := New(add)
	n, err := restored.Context().Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)

	restored.Context().Resolve(1, Int(5))
	require.True(t, restored.Next())
	assert.Equal(t, Int(15), restored.Recv())
}

func TestCoroutineStop(t *testing.T) {
	co := New(add)

	require.True(t, co.Next())
	co.Stop()

	assert.Panics(t, func() {
		co.Context().Resolve(0, Int(10))
		co.Next()
	})
}
