package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCCppDefaultsToKillWithOpenGated(t *testing.T) {
	prog := CCpp()
	assert.Equal(t, Kill, prog.DefaultAction)
	assert.False(t, prog.IsTrivial())

	var openRule, openatRule *Rule
	for i := range prog.Rules {
		switch prog.Rules[i].Syscall {
		case "open":
			openRule = &prog.Rules[i]
		case "openat":
			openatRule = &prog.Rules[i]
		}
	}

	if assert.NotNil(t, openRule) {
		require := assert.New(t)
		require.Len(openRule.Comparators, 1)
		require.Equal(uint(1), openRule.Comparators[0].Arg)
		require.Equal(MaskedEq, openRule.Comparators[0].Kind)
		require.EqualValues(0x11, openRule.Comparators[0].Mask)
		require.EqualValues(0, openRule.Comparators[0].Value)
	}
	if assert.NotNil(t, openatRule) {
		assert.Equal(t, uint(2), openatRule.Comparators[0].Arg)
	}
}

func TestIPCForbidProgramKillsFourCalls(t *testing.T) {
	prog := ipcForbidProgram()
	assert.Equal(t, Allow, prog.DefaultAction)
	names := make([]string, 0, len(prog.Rules))
	for _, r := range prog.Rules {
		assert.Equal(t, Kill, r.Action)
		names = append(names, r.Syscall)
	}
	assert.ElementsMatch(t, []string{"msgget", "semget", "shmget", "mq_open"}, names)
}

func TestEmptyProgramIsTrivial(t *testing.T) {
	assert.True(t, SeccompProgram{DefaultAction: Allow}.IsTrivial())
	assert.False(t, SeccompProgram{DefaultAction: Kill}.IsTrivial())
	assert.False(t, forbidExecveProgram().IsTrivial())
}
