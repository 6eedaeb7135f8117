package sandbox

import (
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/mrunalp/fileutils"
	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

// verifyMounts, when true, makes bindMount double-check via
// /proc/self/mountinfo that the mount actually landed. Off by default; an
// optional diagnostic, never load-bearing (SPEC_FULL §4.D).
var verifyMounts = os.Getenv("CARAPACE_VERIFY_MOUNTS") != ""

// makeRootPrivate prevents mount/umount events in this mount namespace from
// propagating to or from any other, so the bind mounts below are invisible
// outside the sandbox (spec §4.D).
func makeRootPrivate() error {
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return wrapf(err, ChildSetupError, "mount MS_PRIVATE|MS_REC on /")
	}
	return nil
}

// resolveDest prepends the (absolutized) chroot root to dst when a chroot
// is in effect, using a secure join so a crafted dst cannot escape the
// chroot via ".." or symlink components during resolution (spec §4.D
// "destination resolution"; hardening grounded on filepath-securejoin).
func resolveDest(chroot, dst string) (string, error) {
	if chroot == "" {
		return dst, nil
	}
	root, err := filepath.Abs(chroot)
	if err != nil {
		return "", wrapf(err, ValidationError, "absolutize chroot %q", chroot)
	}
	real, err := securejoin.SecureJoin(root, dst)
	if err != nil {
		return "", wrapf(err, ChildSetupError, "resolve destination %q under chroot %q", dst, root)
	}
	return real, nil
}

// bindMount performs the two-step bind-then-remount dance: a single
// mount(2) call cannot atomically bind and apply MS_RDONLY, since MS_BIND
// ignores MS_RDONLY on the initial call (spec §4.D, §9).
func bindMount(src, dst string, recursive, readonly bool) error {
	srcIsDir, err := isDir(src)
	if err != nil {
		return wrapf(err, ChildSetupError, "stat bind mount source %q", src)
	}

	if !accessOK(dst, unix.F_OK) {
		if srcIsDir {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return wrapf(err, ChildSetupError, "mkdir bind mount target %q", dst)
			}
		} else {
			if parent := filepath.Dir(dst); parent != "." {
				if err := os.MkdirAll(parent, 0o755); err != nil {
					return wrapf(err, ChildSetupError, "mkdir bind mount target parent %q", parent)
				}
			}
			if err := fileutils.CreateIfNotExists(dst, false); err != nil {
				return wrapf(err, ChildSetupError, "create bind mount target file %q", dst)
			}
		}
	}

	flags := uintptr(unix.MS_BIND)
	if recursive {
		flags |= unix.MS_REC
	}
	if err := unix.Mount(src, dst, "", flags, ""); err != nil {
		return wrapf(err, ChildSetupError, "bind mount %q -> %q", src, dst)
	}

	if readonly {
		if err := unix.Mount("", dst, "", unix.MS_REMOUNT|unix.MS_BIND|unix.MS_RDONLY, ""); err != nil {
			return wrapf(err, ChildSetupError, "remount readonly %q", dst)
		}
	}

	if verifyMounts {
		if ok, err := mountinfo.Mounted(dst); err != nil || !ok {
			return wrapf(err, ChildSetupError, "mount verification failed for %q (mounted=%v)", dst, ok)
		}
	}

	return nil
}

// mountProc mounts a fresh procfs at dst.
func mountProc(dst string) error {
	if err := ensureDir(dst); err != nil {
		return err
	}
	if err := unix.Mount("none", dst, "proc", 0, ""); err != nil {
		return wrapf(err, ChildSetupError, "mount proc at %q", dst)
	}
	return nil
}

// mountTmpfs mounts a fresh tmpfs at dst.
func mountTmpfs(dst string) error {
	if err := ensureDir(dst); err != nil {
		return err
	}
	if err := unix.Mount("none", dst, "tmpfs", 0, ""); err != nil {
		return wrapf(err, ChildSetupError, "mount tmpfs at %q", dst)
	}
	return nil
}

func ensureDir(dst string) error {
	if accessOK(dst, unix.F_OK) {
		return nil
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return wrapf(err, ChildSetupError, "mkdir mount target %q", dst)
	}
	return nil
}

// doMounts runs the full mount sequence for the child: make-root-private,
// then all RW bind mounts, then all RO bind mounts, then proc/tmpfs (spec
// §4.D, §4.F step 1-2). Read-write mounts must land before read-only ones
// so the readonly remount semantics are unambiguous.
func doMounts(cfg *Config) error {
	if err := makeRootPrivate(); err != nil {
		return err
	}

	for _, m := range cfg.BindMountsRW {
		dst, err := resolveDest(cfg.Chroot, m.Dst)
		if err != nil {
			return err
		}
		if err := bindMount(m.Src, dst, true, false); err != nil {
			return err
		}
	}
	for _, m := range cfg.BindMountsRO {
		dst, err := resolveDest(cfg.Chroot, m.Dst)
		if err != nil {
			return err
		}
		if err := bindMount(m.Src, dst, true, true); err != nil {
			return err
		}
	}

	if cfg.MountProc != "" {
		dst, err := resolveDest(cfg.Chroot, cfg.MountProc)
		if err != nil {
			return err
		}
		if err := mountProc(dst); err != nil {
			return err
		}
	}

	if cfg.MountTmpfs != "" {
		dst, err := resolveDest(cfg.Chroot, cfg.MountTmpfs)
		if err != nil {
			return err
		}
		if err := mountTmpfs(dst); err != nil {
			return err
		}
	}

	return nil
}
