package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchrun/dispatch-go/dispatchproto"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	fd := FunctionDescriptor{Name: "f", Kind: KindOneShot, entry: func(req dispatchproto.RunRequest) (dispatchproto.RunResponse, error) {
		return dispatchproto.RunResponse{}, nil
	}}

	require.NoError(t, r.Register(fd))

	got, err := r.Lookup("f")
	require.NoError(t, err)
	assert.Equal(t, "f", got.Name)
}

func TestRegistryLookupMissingReturnsNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("missing")
	require.Error(t, err)
}

func TestRegistryRegisterSameDescriptorTwiceIsNoop(t *testing.T) {
	r := NewRegistry()
	entry := func(req dispatchproto.RunRequest) (dispatchproto.RunResponse, error) {
		return dispatchproto.RunResponse{}, nil
	}
	fd := FunctionDescriptor{Name: "f", Kind: KindOneShot, entry: entry}

	require.NoError(t, r.Register(fd))
	require.NoError(t, r.Register(fd))
}

func TestRegistryRegisterConflictingDescriptorFails(t *testing.T) {
	r := NewRegistry()
	first := FunctionDescriptor{Name: "f", Kind: KindOneShot, entry: func(req dispatchproto.RunRequest) (dispatchproto.RunResponse, error) {
		return dispatchproto.RunResponse{}, nil
	}}
	second := FunctionDescriptor{Name: "f", Kind: KindCoroutine, entry: func(req dispatchproto.RunRequest) (dispatchproto.RunResponse, error) {
		return dispatchproto.RunResponse{}, nil
	}}

	require.NoError(t, r.Register(first))
	require.Error(t, r.Register(second))
}
