package sandbox

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgvPrependsBin(t *testing.T) {
	cfg := &Config{Bin: "/usr/bin/echo", Args: []string{"hello", "world"}}
	assert.Equal(t, []string{"/usr/bin/echo", "hello", "world"}, buildArgv(cfg))
}

func TestBuildEnvpLiteralAndInherited(t *testing.T) {
	t.Setenv("CARAPACE_TEST_VAR", "present")
	os.Unsetenv("CARAPACE_TEST_MISSING")

	cfg := &Config{
		ForbidInheritedEnv: true,
		Env: []string{
			"NAME=value",
			"CARAPACE_TEST_VAR",
			"CARAPACE_TEST_MISSING",
		},
	}

	envp := buildEnvp(cfg)
	assert.Contains(t, envp, "NAME=value")
	assert.Contains(t, envp, "CARAPACE_TEST_VAR=present")
	for _, e := range envp {
		assert.NotContains(t, e, "CARAPACE_TEST_MISSING")
	}
}

func TestBuildEnvpInheritsParentWhenNotForbidden(t *testing.T) {
	t.Setenv("CARAPACE_TEST_INHERIT_ALL", "yes")
	cfg := &Config{ForbidInheritedEnv: false}
	envp := buildEnvp(cfg)
	assert.Contains(t, envp, "CARAPACE_TEST_INHERIT_ALL=yes")
}
