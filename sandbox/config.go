package sandbox

// Config is the immutable input to Run. It identifies the binary to launch,
// how its environment and standard streams are wired up, the namespaces,
// mounts, rlimits, cgroup limits and seccomp rules to apply, and the wall
// clock budget it gets before being killed. See spec §3.
type Config struct {
	// Bin is the path to the executable. Not resolved against PATH.
	Bin string
	// Args is argv[1:]; argv[0] is always Bin.
	Args []string

	// Env holds environment entries. An entry containing '=' is a literal
	// NAME=value. An entry without '=' means "inherit NAME from the
	// supervisor's environment if present", silently dropped otherwise.
	Env []string
	// ForbidInheritedEnv, when true, stops the supervisor's whole environ
	// from being copied into the child; Env entries without '=' are still
	// looked up and expanded.
	ForbidInheritedEnv bool

	// Chroot, if set, must be an absolute path; the child chroots into it
	// before argv[0] is resolved or executed.
	Chroot string

	// UID / GID: the child drops to these after cgroup/mount/rlimit/seccomp
	// setup but before execve. Nil means "keep the supervisor's identity".
	UID *uint32
	GID *uint32

	// Stdin/Stdout/Stderr: at most one of Path/FD may be set per stream.
	Stdin  StreamSpec
	Stdout StreamSpec
	Stderr StreamSpec

	// RealTimeLimitMillis bounds wall-clock time; 0 means unlimited.
	RealTimeLimitMillis uint64

	// Rlimits, all hard==soft, all optional (nil meaning "do not set").
	RlimitCPUSeconds *uint64
	RlimitASBytes    *uint64
	RlimitDataBytes  *uint64
	RlimitFSizeBytes *uint64

	// CgroupLimitMemoryBytes, when set, caps memory.limit_in_bytes.
	CgroupLimitMemoryBytes *uint64
	// CgroupLimitMaxPids, when set, caps pids.max and attaches the child to
	// the pids controller (otherwise the child is not attached to it).
	CgroupLimitMaxPids *uint64

	// BindMountsRW / BindMountsRO: ordered (src, dst) pairs, both absolute.
	// RW mounts are installed before RO ones.
	BindMountsRW []BindMount
	BindMountsRO []BindMount

	// MountProc / MountTmpfs: optional destination paths (chroot-relative
	// when Chroot is set) for a fresh proc/tmpfs mount.
	MountProc  string
	MountTmpfs string

	// Priority, when set, must be in [-20, 19] and is applied via
	// setpriority(PRIO_PROCESS).
	Priority *int32

	// ForbidTargetExecve installs a seccomp rule that kills the target if
	// it calls execve again after the initial one.
	ForbidTargetExecve bool

	// Seccomp is the rule program to install before execve. Nil/zero-value
	// means "no seccomp filter at all" (default action Allow, no rules).
	Seccomp SeccompProgram
	// SeccompForbidIPC additionally installs a filter that kills msgget,
	// semget, shmget and mq_open, independent of Seccomp (see spec §4.F
	// step 10 and §9 "IPC namespace tax").
	SeccompForbidIPC bool

	// --- expansion fields (SPEC_FULL §3), additive; defaults noted per field ---

	// Hostname, if non-empty, is set via sethostname in the new UTS
	// namespace.
	Hostname string
	// NoNewPrivs explicitly asserts PR_SET_NO_NEW_PRIVS before any seccomp
	// load. Defaults to true; only meaningful when set explicitly to
	// false by a caller that manages this bit itself.
	NoNewPrivs *bool
	// DropCapabilities clears the full capability bounding set before the
	// uid/gid drop.
	DropCapabilities bool
	// PdeathSig arms PR_SET_PDEATHSIG=SIGKILL in the child right after
	// clone. Defaults to true.
	PdeathSig *bool
	// LoopbackUp brings "lo" up in the new network namespace before
	// execve. Defaults to true.
	LoopbackUp *bool

	// EnableIPCNamespace adds CLONE_NEWIPC to the clone flags. Off by
	// default per spec §9 ("IPC namespace tax").
	EnableIPCNamespace bool

	// CgroupName is populated by the supervisor before clone and carried
	// across the re-exec boundary so the child can re-derive the same
	// cgroup directories without a second round trip. Not a caller-facing
	// option.
	CgroupName string `json:"cgroupName"`
}

// StreamSpec configures one of stdin/stdout/stderr. At most one of Path/FD
// may be set; both empty means "leave the stream as inherited from the
// supervisor".
type StreamSpec struct {
	Path string
	FD   *int
	set  bool // distinguishes "FD(0)" from "unset"
}

// NewStreamPath builds a StreamSpec that redirects to a file path.
func NewStreamPath(path string) StreamSpec { return StreamSpec{Path: path, set: true} }

// NewStreamFD builds a StreamSpec that redirects to a pre-opened fd.
func NewStreamFD(fd int) StreamSpec { return StreamSpec{FD: &fd, set: true} }

func (s StreamSpec) isSet() bool { return s.set || s.Path != "" || s.FD != nil }

func (s StreamSpec) conflicting() bool { return s.Path != "" && s.FD != nil }

// BindMount is a (src, dst) pair; both must be absolute paths.
type BindMount struct {
	Src string
	Dst string
}

func boolOrDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
