package dispatchproto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedEnvelopeRoundTrip(t *testing.T) {
	env := TypedEnvelope{TypeURL: PickledValueTypeURL, Bytes: []byte("hello")}
	b := MarshalTypedEnvelope(nil, env)

	got, err := UnmarshalTypedEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, env, got)
}

func TestCallRoundTrip(t *testing.T) {
	c := Call{
		CorrelationID: 7,
		Endpoint:      "https://example.com",
		Function:      "double",
		Input:         TypedEnvelope{TypeURL: PickledValueTypeURL, Bytes: []byte{1, 2, 3}},
		Expiration:    30 * time.Second,
		Version:       "v1",
	}
	got, err := UnmarshalCall(MarshalCall(nil, c))
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestCallResultRejectsBothOutputAndError(t *testing.T) {
	env := TypedEnvelope{TypeURL: PickledValueTypeURL}
	r := CallResult{CorrelationID: 1, Output: &env, Error: &env}
	_, err := MarshalCallResult(nil, r)
	require.Error(t, err)
}

func TestCallResultRoundTrip(t *testing.T) {
	out := TypedEnvelope{TypeURL: PickledValueTypeURL, Bytes: []byte("42")}
	r := CallResult{CorrelationID: 9, Output: &out, DispatchID: "abc"}
	b, err := MarshalCallResult(nil, r)
	require.NoError(t, err)

	got, err := UnmarshalCallResult(b)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestPollRoundTrip(t *testing.T) {
	p := Poll{
		CoroutineState: []byte("state"),
		Calls: []Call{
			{CorrelationID: 1, Function: "double"},
			{CorrelationID: 2, Function: "triple"},
		},
		MinResults: 2,
		MaxResults: 2,
		MaxWait:    time.Minute,
	}
	b, err := MarshalPoll(nil, p)
	require.NoError(t, err)

	got, err := UnmarshalPoll(b)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestExitRejectsBothResultAndTailCall(t *testing.T) {
	e := Exit{Result: &CallResult{CorrelationID: 1}, TailCall: &Call{Function: "f"}}
	_, err := MarshalExit(nil, e)
	require.Error(t, err)
}

func TestRunResponseRoundTripExit(t *testing.T) {
	out := TypedEnvelope{TypeURL: PickledValueTypeURL, Bytes: []byte("42")}
	resp := RunResponse{
		Status: StatusOK,
		Exit:   &Exit{Result: &CallResult{CorrelationID: 0, Output: &out}},
	}
	b, err := MarshalRunResponse(nil, resp)
	require.NoError(t, err)

	got, err := UnmarshalRunResponse(b)
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

func TestRunRequestRejectsInputAndPollResult(t *testing.T) {
	env := TypedEnvelope{TypeURL: PickledValueTypeURL}
	req := RunRequest{Function: "f", Input: &env, PollResult: &PollResult{}}
	_, err := MarshalRunRequest(nil, req)
	require.Error(t, err)
}
