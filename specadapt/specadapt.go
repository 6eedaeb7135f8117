// Package specadapt translates an OCI runtime-spec bundle into a
// sandbox.Config, so that callers already speaking the OCI config.json
// convention (a judge system driving this core through a bundle directory,
// for instance) do not have to hand-build a Config field by field.
//
// This is adapted from the OCI-spec-shaping logic in sysbox-runc's
// libsysbox/syscont package: instead of producing a "system container"
// spec with user-namespace ID mappings and a sysbox-fs mount list, it
// narrows the same spec down to the much smaller surface this sandbox's
// core actually understands (no user namespace, no OCI hooks, no image
// layers — see spec.md §1 Non-goals).
package specadapt

import (
	"fmt"
	"strings"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/carapace-run/carapace/sandbox"
)

// FromOCIProcess builds a sandbox.Config from spec. The chroot is the
// caller-supplied rootfs when non-empty, otherwise spec.Root.Path; mount
// sources and destinations are copied as given, without resolution.
func FromOCIProcess(spec *specs.Spec, rootfs string) (*sandbox.Config, error) {
	if spec.Process == nil {
		return nil, fmt.Errorf("specadapt: spec.Process is required")
	}
	if len(spec.Process.Args) == 0 {
		return nil, fmt.Errorf("specadapt: spec.Process.Args must name a binary")
	}

	cfg := &sandbox.Config{
		Bin:  spec.Process.Args[0],
		Args: append([]string{}, spec.Process.Args[1:]...),
		Env:  append([]string{}, spec.Process.Env...),
	}

	if spec.Hostname != "" {
		cfg.Hostname = spec.Hostname
	}

	if rootfs != "" {
		cfg.Chroot = rootfs
	} else if spec.Root != nil && spec.Root.Path != "" {
		cfg.Chroot = spec.Root.Path
	}

	if spec.Linux != nil && (len(spec.Linux.UIDMappings) > 0 || len(spec.Linux.GIDMappings) > 0) {
		return nil, fmt.Errorf("specadapt: user namespace id mappings are not supported (spec.md non-goals)")
	}

	if err := applyUser(cfg, spec.Process.User); err != nil {
		return nil, err
	}
	applyMounts(cfg, spec.Mounts)
	if err := applyRlimits(cfg, spec.Process.Rlimits); err != nil {
		return nil, err
	}
	applyLinuxResources(cfg, spec.Linux)

	return cfg, nil
}

func applyUser(cfg *sandbox.Config, user specs.User) error {
	if user.UID != 0 {
		uid := user.UID
		cfg.UID = &uid
	}
	if user.GID != 0 {
		gid := user.GID
		cfg.GID = &gid
	}
	return nil
}

// applyMounts splits OCI mounts into read-write and read-only bind mounts
// by the presence of the "ro" option; "proc" and "tmpfs" typed mounts are
// routed to MountProc/MountTmpfs instead (spec §4.D).
func applyMounts(cfg *sandbox.Config, mounts []specs.Mount) {
	for _, m := range mounts {
		switch m.Type {
		case "proc":
			cfg.MountProc = m.Destination
			continue
		case "tmpfs":
			cfg.MountTmpfs = m.Destination
			continue
		}

		bm := sandbox.BindMount{Src: m.Source, Dst: m.Destination}
		if hasOption(m.Options, "ro") {
			cfg.BindMountsRO = append(cfg.BindMountsRO, bm)
		} else {
			cfg.BindMountsRW = append(cfg.BindMountsRW, bm)
		}
	}
}

func hasOption(opts []string, want string) bool {
	for _, o := range opts {
		if strings.TrimSpace(o) == want {
			return true
		}
	}
	return false
}

// applyRlimits maps the four POSIX rlimits this core understands; any
// other named rlimit in the spec is ignored (out of scope, spec §1).
func applyRlimits(cfg *sandbox.Config, rlimits []specs.POSIXRlimit) error {
	for _, rl := range rlimits {
		v := rl.Hard
		switch rl.Type {
		case "RLIMIT_CPU":
			cfg.RlimitCPUSeconds = &v
		case "RLIMIT_AS":
			cfg.RlimitASBytes = &v
		case "RLIMIT_DATA":
			cfg.RlimitDataBytes = &v
		case "RLIMIT_FSIZE":
			cfg.RlimitFSizeBytes = &v
		}
	}
	return nil
}

// applyLinuxResources maps cgroup memory/pids limits (spec §4.C); any
// other controller named in spec.Linux.Resources (cpu shares, blkio
// weights, device rules, ...) is out of this core's scope and ignored.
func applyLinuxResources(cfg *sandbox.Config, l *specs.Linux) {
	if l == nil || l.Resources == nil {
		return
	}
	if mem := l.Resources.Memory; mem != nil && mem.Limit != nil {
		v := uint64(*mem.Limit)
		cfg.CgroupLimitMemoryBytes = &v
	}
	if pids := l.Resources.Pids; pids != nil {
		v := uint64(pids.Limit)
		cfg.CgroupLimitMaxPids = &v
	}
}
