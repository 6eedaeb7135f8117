//go:build linux && e2e

// These exercise the real clone/cgroup/seccomp pipeline end to end and
// therefore need CAP_SYS_ADMIN and a cgroup v1 hierarchy mounted at
// /sys/fs/cgroup; they are excluded from the default test run via the "e2e"
// build tag. Run with: go test -tags e2e ./sandbox/...
package sandbox

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func requireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("requires root (CAP_SYS_ADMIN) to create namespaces and cgroups")
	}
}

// Scenario 1: hello world, no limits.
func TestE2EHelloWorld(t *testing.T) {
	requireRoot(t)
	out, err := Run(&Config{Bin: "/bin/echo", Args: []string{"hello"}})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Code)
	assert.Equal(t, 0, out.Signal)
	assert.Less(t, out.RealTime, uint64(100))
}

// Scenario 2: wall-clock kill.
func TestE2EWallClockKill(t *testing.T) {
	requireRoot(t)
	out, err := Run(&Config{
		Bin:                 "/bin/sleep",
		Args:                []string{"10"},
		RealTimeLimitMillis: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, int(unix.SIGKILL), out.Signal)
	assert.GreaterOrEqual(t, out.RealTime, uint64(1000))
	assert.LessOrEqual(t, out.RealTime, uint64(1100))
}

// Scenario 3: CPU rlimit kill.
func TestE2ECPURlimitKill(t *testing.T) {
	requireRoot(t)
	cpuLimit := uint64(1)
	out, err := Run(&Config{
		Bin:                 "/bin/sh",
		Args:                []string{"-c", "while :; do :; done"},
		RlimitCPUSeconds:    &cpuLimit,
		RealTimeLimitMillis: 1500,
	})
	require.NoError(t, err)
	assert.Equal(t, int(unix.SIGKILL), out.Signal)
	assert.GreaterOrEqual(t, out.UserTime, uint64(950))
	assert.LessOrEqual(t, out.UserTime, uint64(1100))
}

// Scenario 4: memory cgroup OOM.
func TestE2EMemoryCgroupOOM(t *testing.T) {
	requireRoot(t)
	memLimit := uint64(16 * 1024 * 1024)
	out, err := Run(&Config{
		Bin:                    "/bin/sh",
		Args:                   []string{"-c", "dd if=/dev/zero of=/dev/null bs=128M count=1"},
		CgroupLimitMemoryBytes: &memLimit,
		RealTimeLimitMillis:    1000,
	})
	require.NoError(t, err)
	assert.Equal(t, int(unix.SIGKILL), out.Signal)
}

// Scenario 5: fork bomb contained.
func TestE2EForkBombContained(t *testing.T) {
	requireRoot(t)
	maxPids := uint64(3)
	start := time.Now()
	out, err := Run(&Config{
		Bin:                 "/bin/sh",
		Args:                []string{"-c", ":(){ :|:& };:"},
		CgroupLimitMaxPids:  &maxPids,
		RealTimeLimitMillis: 1000,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, time.Since(start), 1100*time.Millisecond)
	_ = out
}

// Scenario 6: seccomp-denied execve.
func TestE2ESeccompDeniedExecve(t *testing.T) {
	requireRoot(t)
	out, err := Run(&Config{
		Bin:                "/bin/sh",
		Args:               []string{"-c", "exec /bin/true"},
		Seccomp:            CCpp(),
		ForbidTargetExecve: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int(unix.SIGSYS), out.Signal)
}
