//go:build linux

package sandbox

import (
	"os"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// prepareAndExec runs the full in-child preparation sequence (spec §4.F)
// and, on success, replaces this process image via execve — at which point
// it never returns. On any failure it writes the diagnostic to errw and
// exits with the sentinel code; it also never returns in that case.
func prepareAndExec(cfg *Config, errw *errorPipeWriter) {
	if err := runPreparation(cfg); err != nil {
		errw.writeError(err)
		os.Exit(101)
	}

	argv := buildArgv(cfg)
	envp := buildEnvp(cfg)
	err := unix.Exec(cfg.Bin, argv, envp)
	// unix.Exec only returns on failure (spec §4.F step 13, ExecError).
	errw.writeError(wrapf(err, ExecError, "execve %q", cfg.Bin))
	os.Exit(101)
}

func runPreparation(cfg *Config) error {
	// Expansion (a): hostname, set as early as possible in the new UTS
	// namespace.
	if cfg.Hostname != "" {
		if err := unix.Sethostname([]byte(cfg.Hostname)); err != nil {
			return wrapf(err, ChildSetupError, "sethostname %q", cfg.Hostname)
		}
	}

	// Expansion (b): loopback interface, needed by any target that talks
	// to 127.0.0.1 inside its otherwise-empty network namespace.
	if boolOrDefault(cfg.LoopbackUp, true) {
		if err := bringLoopbackUp(); err != nil {
			return wrapf(err, ChildSetupError, "bring loopback interface up")
		}
	}

	// Step 1-2: make root private, then all mounts (D).
	if err := doMounts(cfg); err != nil {
		return err
	}

	// Step 4: attach to cpu/memory (and pids, if configured) cgroups;
	// open (do not yet write) the metric-reset files.
	cg, err := attachCgroupForChild(cfg)
	if err != nil {
		return err
	}
	if err := cg.openResetFiles(); err != nil {
		return err
	}

	// Step 5: chroot, then chdir("/").
	if cfg.Chroot != "" {
		if err := unix.Chroot(cfg.Chroot); err != nil {
			return wrapf(err, ChildSetupError, "chroot %q", cfg.Chroot)
		}
		if err := unix.Chdir("/"); err != nil {
			return wrapf(err, ChildSetupError, "chdir / after chroot")
		}
	}

	// Step 6: hard rlimits, soft==hard.
	if err := installRlimits(cfg); err != nil {
		return err
	}

	// Step 7: scheduling priority.
	if cfg.Priority != nil {
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, int(*cfg.Priority)); err != nil {
			return wrapf(err, ChildSetupError, "setpriority %d", *cfg.Priority)
		}
	}

	// Step 8: stdio redirection.
	if err := redirectStdio(cfg); err != nil {
		return err
	}

	// Step 9: verify the binary is accessible before doing anything
	// irreversible with seccomp/identity.
	if !accessOK(cfg.Bin, unix.F_OK) {
		return newError(ChildSetupError, &os.PathError{Op: "access", Path: cfg.Bin, Err: unix.ENOENT})
	}

	// Expansion (c): assert no-new-privs explicitly, ahead of any seccomp
	// load (libseccomp also sets this bit implicitly on Load in an
	// unprivileged process; doing it here makes the intent explicit and
	// lets a caller that already dropped privileges skip it safely).
	if boolOrDefault(cfg.NoNewPrivs, true) {
		if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
			return wrapf(err, ChildSetupError, "prctl PR_SET_NO_NEW_PRIVS")
		}
	}

	// Step 10: main seccomp program, then the forbid-execve and
	// IPC-forbidding addenda as additional stacked filter layers.
	if !cfg.Seccomp.IsTrivial() {
		if err := loadSeccompProgram(cfg.Seccomp); err != nil {
			return err
		}
	}
	if cfg.ForbidTargetExecve {
		if err := loadSeccompProgram(forbidExecveProgram()); err != nil {
			return err
		}
	}
	if cfg.SeccompForbidIPC {
		if err := loadSeccompProgram(ipcForbidProgram()); err != nil {
			return err
		}
	}

	// Step 11: the deferred "0" writes, now that nothing else will touch
	// this cgroup's accounting before the target runs.
	if err := cg.resetMetrics(); err != nil {
		return err
	}

	// Expansion (d): clear the capability bounding set, ahead of the
	// uid/gid drop so the dropped-to identity cannot regain anything via
	// a setuid/file-capability binary.
	if cfg.DropCapabilities {
		if err := dropBoundingCapabilities(); err != nil {
			return err
		}
	}

	// Step 12: drop identity. Group first, then user; both issued as raw
	// syscalls via golang.org/x/sys/unix, which on Linux already invokes
	// SYS_setresgid/SYS_setresuid/SYS_setgroups directly rather than
	// through any libc wrapper — the deadlock the original implementation
	// guards against (a glibc wrapper broadcasting to all threads in the
	// process) does not arise here, but the same direct-syscall shape is
	// kept for parity with spec §9.
	if cfg.GID != nil {
		if err := unix.Setresgid(int(*cfg.GID), int(*cfg.GID), int(*cfg.GID)); err != nil {
			return wrapf(err, ChildSetupError, "setresgid %d", *cfg.GID)
		}
		if err := unix.Setgroups([]int{int(*cfg.GID)}); err != nil {
			return wrapf(err, ChildSetupError, "setgroups [%d]", *cfg.GID)
		}
	}
	if cfg.UID != nil {
		if err := unix.Setresuid(int(*cfg.UID), int(*cfg.UID), int(*cfg.UID)); err != nil {
			return wrapf(err, ChildSetupError, "setresuid %d", *cfg.UID)
		}
	}

	return nil
}

func bringLoopbackUp() error {
	link, err := netlink.LinkByName("lo")
	if err != nil {
		return err
	}
	return netlink.LinkSetUp(link)
}

func installRlimits(cfg *Config) error {
	set := func(resource int, limit *uint64) error {
		if limit == nil {
			return nil
		}
		return unix.Setrlimit(resource, &unix.Rlimit{Cur: *limit, Max: *limit})
	}
	if err := set(unix.RLIMIT_CPU, cfg.RlimitCPUSeconds); err != nil {
		return wrapf(err, ChildSetupError, "setrlimit RLIMIT_CPU")
	}
	if err := set(unix.RLIMIT_AS, cfg.RlimitASBytes); err != nil {
		return wrapf(err, ChildSetupError, "setrlimit RLIMIT_AS")
	}
	if err := set(unix.RLIMIT_DATA, cfg.RlimitDataBytes); err != nil {
		return wrapf(err, ChildSetupError, "setrlimit RLIMIT_DATA")
	}
	if err := set(unix.RLIMIT_FSIZE, cfg.RlimitFSizeBytes); err != nil {
		return wrapf(err, ChildSetupError, "setrlimit RLIMIT_FSIZE")
	}
	return nil
}

func redirectStdio(cfg *Config) error {
	if err := redirectStream(cfg.Stdin, unix.Stdin, true); err != nil {
		return wrapf(err, ChildSetupError, "redirect stdin")
	}
	if err := redirectStream(cfg.Stdout, unix.Stdout, false); err != nil {
		return wrapf(err, ChildSetupError, "redirect stdout")
	}
	if err := redirectStream(cfg.Stderr, unix.Stderr, false); err != nil {
		return wrapf(err, ChildSetupError, "redirect stderr")
	}
	return nil
}

// redirectStream implements spec §4.F step 8 for a single stream.
func redirectStream(spec StreamSpec, stdFd int, input bool) error {
	if !spec.isSet() {
		return nil
	}
	if spec.conflicting() {
		return newError(ValidationError, errString("both path and fd set for one stream"))
	}

	if spec.Path != "" {
		var flags int
		var mode uint32
		if input {
			flags = unix.O_RDONLY | unix.O_CLOEXEC
		} else {
			flags = unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC | unix.O_CLOEXEC
			mode = 0o644
		}
		fd, err := unix.Open(spec.Path, flags, mode)
		if err != nil {
			return err
		}
		if err := unix.Dup2(fd, stdFd); err != nil {
			unix.Close(fd)
			return err
		}
		return unix.Close(fd)
	}

	if spec.FD != nil {
		return unix.Dup2(*spec.FD, stdFd)
	}
	return nil
}

// attachCgroupForChild re-derives the same cgroupGroup handle the
// supervisor created before clone (the name travels in through the JSON
// config) and performs the in-child attach/limit sequence (spec §4.F step
// 4, §4.C).
func attachCgroupForChild(cfg *Config) (*cgroupGroup, error) {
	cg, err := createCgroupGroup(cfg.CgroupName)
	if err != nil {
		return nil, err
	}
	if err := cg.setupChild(cfg); err != nil {
		return nil, err
	}
	return cg, nil
}
