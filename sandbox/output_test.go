package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputSuccess(t *testing.T) {
	assert.True(t, Output{Code: 0, Signal: 0}.Success())
	assert.False(t, Output{Code: 1, Signal: 0}.Success())
	assert.False(t, Output{Code: 0, Signal: 9}.Success())
}
