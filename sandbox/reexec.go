package sandbox

import (
	"encoding/json"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// reexecSentinel is argv[1] the supervisor passes to /proc/self/exe so the
// freshly cloned process recognizes it must run the child preparation
// sequence instead of the caller's normal main(). This mirrors runc's own
// "init" re-exec: a bare clone(2) cannot safely continue running the Go
// runtime (other goroutines may hold locks mid-fork), so the namespace-
// entering process always immediately execve's a fresh copy of the
// supervisor binary, configured via fd 3 (config) and fd 4 (error pipe).
const reexecSentinel = "carapace-child-init"

// configFD / errorPipeFD are the well-known ExtraFiles slots the
// supervisor wires up on the exec.Cmd that performs the clone.
const (
	configFD    = 3
	errorPipeFD = 4
)

// IsChildInit reports whether the current process was invoked as the
// re-exec'd child init (cmd/carapace's main() checks this before doing
// anything else).
func IsChildInit(args []string) bool {
	return len(args) > 1 && args[1] == reexecSentinel
}

// ReexecArgs returns the argv the supervisor should pass to exec.Cmd.Args
// when re-executing self, given os.Args[0] as the program name to report.
func ReexecArgs(self string) []string {
	return []string{self, reexecSentinel}
}

// writeConfig JSON-encodes cfg onto w; used by the supervisor to hand the
// child its configuration across the exec boundary, since a Go struct
// cannot otherwise survive execve.
func writeConfig(w io.Writer, cfg *Config) error {
	return json.NewEncoder(w).Encode(cfg)
}

// ChildMain reads the Config from fd configFD and the error pipe write end
// from fd errorPipeFD, then runs the full preparation sequence. It never
// returns: on success execve replaces the process image; on failure it
// reports over the pipe and calls os.Exit(101) (spec §4.B, §4.F).
func ChildMain() {
	// os/exec's fork/exec path deliberately clears close-on-exec on
	// ExtraFiles descriptors so they survive this re-exec into slots 3/4.
	// Re-arm it here, before anything else runs, so the *next* exec (the
	// sandboxed target's) does not inherit either fd: configFD is already
	// closed below, but errorPipeFD stays open across the whole preparation
	// sequence and must not leak into the target (spec §4.B).
	_ = unix.CloseOnExec(configFD)
	_ = unix.CloseOnExec(errorPipeFD)

	cfgFile := os.NewFile(uintptr(configFD), "carapace-config")
	errwFile := os.NewFile(uintptr(errorPipeFD), "carapace-error-pipe-w")
	errw := &errorPipeWriter{f: errwFile}

	var cfg Config
	if err := json.NewDecoder(cfgFile).Decode(&cfg); err != nil {
		errw.writeError(wrapf(err, ChildSetupError, "decode config from fd %d", configFD))
		os.Exit(101)
	}
	_ = cfgFile.Close()

	prepareAndExec(&cfg, errw)
	// prepareAndExec never returns (it either execs or reports and exits),
	// but exit here too as a final backstop.
	os.Exit(101)
}
