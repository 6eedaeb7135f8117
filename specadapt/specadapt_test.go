package specadapt

import (
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromOCIProcessMapsCoreFields(t *testing.T) {
	limit := int64(64 * 1024 * 1024)
	spec := &specs.Spec{
		Hostname: "box",
		Root:     &specs.Root{Path: "/bundle/rootfs"},
		Process: &specs.Process{
			Args: []string{"/usr/bin/run", "--flag"},
			Env:  []string{"PATH=/bin"},
			User: specs.User{UID: 1000, GID: 1000},
			Rlimits: []specs.POSIXRlimit{
				{Type: "RLIMIT_CPU", Hard: 2},
			},
		},
		Mounts: []specs.Mount{
			{Destination: "/data", Source: "/host/data", Options: []string{"bind", "ro"}},
			{Destination: "/scratch", Source: "/host/scratch", Options: []string{"bind", "rw"}},
			{Destination: "/proc", Type: "proc", Source: "proc"},
		},
		Linux: &specs.Linux{
			Resources: &specs.LinuxResources{
				Memory: &specs.LinuxMemory{Limit: &limit},
				Pids:   &specs.LinuxPids{Limit: 32},
			},
		},
	}

	cfg, err := FromOCIProcess(spec, "")
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/run", cfg.Bin)
	assert.Equal(t, []string{"--flag"}, cfg.Args)
	assert.Equal(t, "box", cfg.Hostname)
	assert.Equal(t, "/bundle/rootfs", cfg.Chroot)
	require.NotNil(t, cfg.UID)
	assert.EqualValues(t, 1000, *cfg.UID)
	require.NotNil(t, cfg.RlimitCPUSeconds)
	assert.EqualValues(t, 2, *cfg.RlimitCPUSeconds)
	require.NotNil(t, cfg.CgroupLimitMemoryBytes)
	assert.EqualValues(t, limit, *cfg.CgroupLimitMemoryBytes)
	require.NotNil(t, cfg.CgroupLimitMaxPids)
	assert.EqualValues(t, 32, *cfg.CgroupLimitMaxPids)
	assert.Equal(t, "/proc", cfg.MountProc)

	require.Len(t, cfg.BindMountsRO, 1)
	assert.Equal(t, "/host/data", cfg.BindMountsRO[0].Src)
	require.Len(t, cfg.BindMountsRW, 1)
	assert.Equal(t, "/host/scratch", cfg.BindMountsRW[0].Src)
}

func TestFromOCIProcessRequiresArgs(t *testing.T) {
	_, err := FromOCIProcess(&specs.Spec{Process: &specs.Process{}}, "")
	assert.Error(t, err)
}
