package sandbox

import "golang.org/x/sys/unix"

// openFlagsMask/openFlagsValue gate open/openat so only a read-only open
// is allowed: mask 0x11 against the low-order access-mode nibble, compared
// against O_RDONLY (0). This is the spec's documented loose check (§4.E,
// §9 open question (b)) — it permits several low-bit combinations beyond
// strictly O_RDONLY, and is not tightened here.
const (
	openFlagsMask  = 0x11
	openFlagsValue = uint64(unix.O_RDONLY)
)

func allow(syscall string) Rule {
	return Rule{Action: Allow, Syscall: syscall}
}

func kill(syscall string) Rule {
	return Rule{Action: Kill, Syscall: syscall}
}

// CCpp is the built-in preset for running compiled C/C++ binaries: default
// Kill, with an allow-list covering the syscalls a statically-linked or
// glibc-dynamic binary needs to reach its own exit, plus a gated open/
// openat that only ever permits read-only access (spec §4.E).
func CCpp() SeccompProgram {
	return SeccompProgram{
		DefaultAction: Kill,
		Rules: []Rule{
			allow("mprotect"),
			allow("mmap"),
			allow("munmap"),
			allow("access"),
			allow("read"),
			allow("write"),
			allow("close"),
			allow("stat"),
			allow("fstat"),
			allow("brk"),
			allow("arch_prctl"),
			allow("lseek"),
			allow("uname"),
			allow("readlink"),
			allow("exit_group"),
			allow("sysinfo"),
			{
				Action:  Allow,
				Syscall: "open",
				Comparators: []Comparator{
					{Arg: 1, Kind: MaskedEq, Mask: openFlagsMask, Value: openFlagsValue},
				},
			},
			{
				Action:  Allow,
				Syscall: "openat",
				Comparators: []Comparator{
					{Arg: 2, Kind: MaskedEq, Mask: openFlagsMask, Value: openFlagsValue},
				},
			},
		},
	}
}

// forbidExecveProgram adds a Kill rule for execve/execveat on top of whatever
// program is already installed, used when ForbidTargetExecve is set
// (spec §3, scenario 6). It is installed as its own filter layer, same as
// the IPC-forbidding addendum.
func forbidExecveProgram() SeccompProgram {
	return SeccompProgram{
		DefaultAction: Allow,
		Rules: []Rule{
			kill("execve"),
			kill("execveat"),
		},
	}
}

// ipcForbidProgram kills the IPC syscalls the core would otherwise rely on
// CLONE_NEWIPC to block (spec §4.F step 10, §9 "IPC namespace tax").
func ipcForbidProgram() SeccompProgram {
	return SeccompProgram{
		DefaultAction: Allow,
		Rules: []Rule{
			kill("msgget"),
			kill("semget"),
			kill("shmget"),
			kill("mq_open"),
		},
	}
}
