package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorPipeRoundTripsSuccess(t *testing.T) {
	w, r, err := newErrorPipe()
	require.NoError(t, err)
	defer w.Close()
	defer r.Close()

	require.NoError(t, w.Close())
	assert.NoError(t, r.readResult())
}

func TestErrorPipeRoundTripsFailure(t *testing.T) {
	w, r, err := newErrorPipe()
	require.NoError(t, err)
	defer w.Close()
	defer r.Close()

	w.writeError(wrapf(errString("boom"), ChildSetupError, "mount /dev"))
	require.NoError(t, w.Close())

	result := r.readResult()
	require.Error(t, result)
	assert.True(t, IsKind(result, ChildSetupError))
	assert.Contains(t, result.Error(), "mount /dev")
	assert.Contains(t, result.Error(), "boom")
}

func TestErrorPipeWriteErrorNilIsNoop(t *testing.T) {
	w, r, err := newErrorPipe()
	require.NoError(t, err)
	defer r.Close()

	w.writeError(nil)
	require.NoError(t, w.Close())
	assert.NoError(t, r.readResult())
}

func TestErrorPipeCloseIsNilSafe(t *testing.T) {
	var w *errorPipeWriter
	var r *errorPipeReader
	assert.NotPanics(t, func() {
		assert.NoError(t, w.Close())
		assert.NoError(t, r.Close())
	})
}

func TestDetailedMessageWalksCauseChain(t *testing.T) {
	inner := newError(ChildSetupError, errString("inner failure"))
	outer := wrapf(inner, SetupError, "outer step")

	msg := detailedMessage(outer)
	assert.Contains(t, msg, "outer step")
	assert.Contains(t, msg, "inner failure")
}

func TestDetailedMessageStopsOnPlainError(t *testing.T) {
	msg := detailedMessage(errString("no cause chain here"))
	assert.Equal(t, "no cause chain here\n", msg)
}

func TestDetailedMessageHandlesNilCause(t *testing.T) {
	assert.NotPanics(t, func() {
		detailedMessage(newError(SetupError, errString("leaf")))
	})
}
