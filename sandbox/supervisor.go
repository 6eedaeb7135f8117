package sandbox

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// cgroupLockPath serializes cgroup directory creation across concurrent
// supervisor instances in the same process image (the per-run name is
// already unique, but subsystem mountpoint discovery touches shared
// /proc/self/mountinfo state that is friendlier to read under a lock).
const cgroupLockPath = "/run/carapace-cgroup.lock"

// Run launches cfg.Bin under full isolation, waits for it to finish or
// kills it on timeout, and returns a machine-readable summary (spec §2,
// §6 "run(config) -> output | error").
func Run(cfg *Config) (Output, error) {
	if err := validate(cfg); err != nil {
		return Output{}, err
	}

	name := "carapace_" + uuid.New().String()
	cfg.CgroupName = name

	fl := flock.New(cgroupLockPath)
	if err := fl.Lock(); err != nil {
		return Output{}, wrapf(err, SetupError, "lock %q", cgroupLockPath)
	}
	cg, err := createCgroupGroup(name)
	fl.Unlock()
	if err != nil {
		return Output{}, err
	}

	cfgR, cfgW, err := os.Pipe()
	if err != nil {
		_ = cg.cleanup(logrus.StandardLogger())
		return Output{}, wrapf(err, SetupError, "create config pipe")
	}
	errw, errr, err := newErrorPipe()
	if err != nil {
		cfgR.Close()
		cfgW.Close()
		_ = cg.cleanup(logrus.StandardLogger())
		return Output{}, wrapf(err, SetupError, "create error pipe")
	}

	cmd := &exec.Cmd{Path: "/proc/self/exe", Args: ReexecArgs(os.Args[0])}
	cmd.ExtraFiles = []*os.File{cfgR, errw.f}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: cloneFlags(cfg),
		Pdeathsig:  pdeathSignal(cfg),
	}

	t0 := time.Now()
	if err := cmd.Start(); err != nil {
		cfgR.Close()
		cfgW.Close()
		errw.Close()
		errr.Close()
		_ = cg.cleanup(logrus.StandardLogger())
		return Output{}, wrapf(err, ForkError, "clone/exec child init")
	}

	// Parent closes the ends it does not own (spec §4.B).
	_ = cfgR.Close()
	_ = errw.Close()

	writeErr := writeConfig(cfgW, cfg)
	_ = cfgW.Close()
	if writeErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = cg.cleanup(logrus.StandardLogger())
		errr.Close()
		return Output{}, wrapf(writeErr, SetupError, "write config to child")
	}

	var timer *killTimer
	if cfg.RealTimeLimitMillis > 0 {
		timer = startKillTimer(cmd.Process.Pid, time.Duration(cfg.RealTimeLimitMillis)*time.Millisecond)
	}

	prepErr := errr.readResult()
	errr.Close()

	waitErr := cmd.Wait()
	timer.cancel()

	realDuration := time.Since(t0)

	metrics, metricsErr := cg.collect()
	cleanupErr := cg.cleanup(logrus.StandardLogger())
	if cleanupErr != nil {
		logrus.WithError(cleanupErr).Warn("cgroup cleanup reported an error")
	}

	if prepErr != nil {
		return Output{}, prepErr
	}

	code, signal, reapErr := exitStatus(waitErr, cmd.ProcessState)
	if reapErr != nil {
		return Output{}, reapErr
	}

	if metricsErr != nil {
		return Output{}, wrapf(metricsErr, ReapingError, "collect cgroup metrics")
	}

	return Output{
		Code:     code,
		Signal:   signal,
		RealTime: uint64(realDuration.Milliseconds()),
		UserTime: metrics.userTimeNs / uint64(time.Millisecond),
		SysTime:  metrics.sysTimeNs / uint64(time.Millisecond),
		MemoryKB: metrics.memoryB / 1024,
	}, nil
}

// exitStatus renders a completed wait into (code, signal) per spec §4.G
// step 10's CLD_EXITED/CLD_KILLED split. A nil ProcessState or an
// unrecognized Sys() type means the reap itself failed (waitErr, if any,
// names why) rather than "exited with status 0" — that is reported as a
// ReapingError instead of being silently folded into a clean-looking
// Output.
func exitStatus(waitErr error, state *os.ProcessState) (int, int, error) {
	reapFailed := func(reason string) error {
		if waitErr != nil {
			return wrapf(waitErr, ReapingError, reason)
		}
		return newError(ReapingError, errString(reason))
	}

	if state == nil {
		return 0, 0, reapFailed("wait for child: no process state")
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return 0, 0, reapFailed("wait for child: unrecognized wait status")
	}
	if ws.Exited() {
		return ws.ExitStatus(), 0, nil
	}
	if ws.Signaled() {
		return 0, int(ws.Signal()), nil
	}
	return 0, 0, reapFailed("wait for child: neither exited nor signaled")
}

func cloneFlags(cfg *Config) uintptr {
	flags := uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWUTS | syscall.CLONE_NEWPID | syscall.CLONE_NEWNET)
	if cfg.EnableIPCNamespace {
		flags |= syscall.CLONE_NEWIPC
	}
	return flags
}

func pdeathSignal(cfg *Config) syscall.Signal {
	if boolOrDefault(cfg.PdeathSig, true) {
		return syscall.SIGKILL
	}
	return 0
}

// validate implements spec §4.G step 1 and §3 "Invariants".
func validate(cfg *Config) error {
	var errs *multierror.Error

	if cfg.Bin == "" {
		errs = multierror.Append(errs, newError(ValidationError, errString("bin must be set")))
	}
	if cfg.Chroot != "" && !filepath.IsAbs(cfg.Chroot) {
		errs = multierror.Append(errs, newError(ValidationError, errString("chroot must be absolute: "+cfg.Chroot)))
	}
	for _, m := range append(append([]BindMount{}, cfg.BindMountsRW...), cfg.BindMountsRO...) {
		if !filepath.IsAbs(m.Src) {
			errs = multierror.Append(errs, newError(ValidationError, errString("bind mount source must be absolute: "+m.Src)))
		}
		if !filepath.IsAbs(m.Dst) {
			errs = multierror.Append(errs, newError(ValidationError, errString("bind mount destination must be absolute: "+m.Dst)))
		}
	}
	if cfg.MountProc != "" && !filepath.IsAbs(cfg.MountProc) {
		errs = multierror.Append(errs, newError(ValidationError, errString("proc mount point must be absolute: "+cfg.MountProc)))
	}
	if cfg.MountTmpfs != "" && !filepath.IsAbs(cfg.MountTmpfs) {
		errs = multierror.Append(errs, newError(ValidationError, errString("tmpfs mount point must be absolute: "+cfg.MountTmpfs)))
	}
	if cfg.Priority != nil && (*cfg.Priority < -20 || *cfg.Priority > 19) {
		errs = multierror.Append(errs, newError(ValidationError, errString("priority out of range [-20, 19]")))
	}
	for label, s := range map[string]StreamSpec{"stdin": cfg.Stdin, "stdout": cfg.Stdout, "stderr": cfg.Stderr} {
		if s.conflicting() {
			errs = multierror.Append(errs, newError(ValidationError, errString("both path and fd set for "+label)))
		}
	}

	if errs == nil {
		return nil
	}
	errs.ErrorFormat = func(es []error) string {
		lines := make([]string, len(es))
		for i, e := range es {
			lines[i] = e.Error()
		}
		return strings.Join(lines, "; ")
	}
	return errs.ErrorOrNil()
}
