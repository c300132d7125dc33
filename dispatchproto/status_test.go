package dispatchproto

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transientErr struct{ msg string }

func (e transientErr) Error() string  { return e.msg }
func (e transientErr) Transient() bool { return true }

func TestClassifyError(t *testing.T) {
	assert.Equal(t, StatusOK, ClassifyError(nil))
	assert.Equal(t, StatusPermanentError, ClassifyError(errors.New("boom")))
	assert.Equal(t, StatusTemporaryError, ClassifyError(transientErr{msg: "retry me"}))
}

func TestClassifyErrorCancelled(t *testing.T) {
	assert.Equal(t, StatusTimeout, ClassifyError(ErrCancelled))
	assert.Equal(t, StatusTimeout, ClassifyError(fmt.Errorf("wrapped: %w", ErrCancelled)))
}

func TestClassifyErrorPreservesStatuserRoundTrip(t *testing.T) {
	env, err := BoxError(&Error{Type: "TimeoutError", Message: "deadline exceeded", Status: StatusTimeout})
	require.NoError(t, err)

	got, err := UnboxError(env)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, ClassifyError(got))
}

func TestStatusClassification(t *testing.T) {
	assert.True(t, StatusTimeout.Transient())
	assert.True(t, StatusHTTPError.Transient())
	assert.False(t, StatusHTTPError.Permanent())

	assert.True(t, StatusNotFound.Permanent())
	assert.False(t, StatusNotFound.Transient())
}
