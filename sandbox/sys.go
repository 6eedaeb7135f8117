package sandbox

import (
	"os"

	"golang.org/x/sys/unix"
)

// isDir reports whether path names a directory, following symlinks (a
// symlink to a directory counts as a directory) for the caller's "create
// as directory vs. create as file" decision (bind mount target creation in
// mount.go relies on this distinction).
func isDir(path string) (bool, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil { // Stat follows symlinks, matching src_is_dir semantics
		return false, &os.SyscallError{Syscall: "stat", Err: err}
	}
	return st.Mode&unix.S_IFMT == unix.S_IFDIR, nil
}

// accessOK reports whether path exists and is accessible with the given
// mode bits (unix.F_OK, unix.R_OK, ...).
func accessOK(path string, mode uint32) bool {
	return unix.Access(path, mode) == nil
}
