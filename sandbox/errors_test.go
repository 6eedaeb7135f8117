package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapfPreservesKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := wrapf(cause, ChildSetupError, "doing %s", "thing")
	require.Error(t, err)
	assert.True(t, IsKind(err, ChildSetupError))
	assert.False(t, IsKind(err, ValidationError))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.ErrorIs(t, e.Cause(), cause)
	assert.Contains(t, err.Error(), "doing thing")
}

func TestIsKindFalseForPlainError(t *testing.T) {
	assert.False(t, IsKind(errors.New("plain"), SetupError))
}

func TestIsKindFalseForNil(t *testing.T) {
	assert.False(t, IsKind(nil, SetupError))
}
