package dispatchproto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxUnboxRoundTrip(t *testing.T) {
	env, err := Box(map[string]any{"a": int64(1), "b": "two"})
	require.NoError(t, err)
	assert.Equal(t, PickledValueTypeURL, env.TypeURL)

	got, err := Unbox(env)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "b": "two"}, got)
}

func TestUnboxRejectsWrongTypeURL(t *testing.T) {
	_, err := Unbox(TypedEnvelope{TypeURL: "something-else"})
	require.Error(t, err)
}

func TestBoxErrorRoundTrip(t *testing.T) {
	env, err := BoxError(errors.New("boom"))
	require.NoError(t, err)
	assert.Equal(t, ErrorTypeURL, env.TypeURL)

	got, err := UnboxError(env)
	require.NoError(t, err)
	assert.Contains(t, got.Message, "boom")
}
