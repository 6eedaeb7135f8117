package sandbox

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// killTimer is a one-shot, cancellable delayed SIGKILL against a pid (spec
// §4.H). Cancellation is at-most-one-signal: once cancel() returns, no
// SIGKILL from this timer will ever fire afterward — cancel() blocks on
// kt.done whenever the timer had already fired by the time Stop() was
// called, so a caller proceeding past cancel() never races an in-flight
// kill. cancelOnce makes a second cancel() call a no-op instead of blocking
// forever on a done channel that only closes when the timer actually fires.
type killTimer struct {
	pid        int
	cancelled  atomic.Bool
	timer      *time.Timer
	done       chan struct{}
	cancelOnce sync.Once
}

// startKillTimer schedules a SIGKILL against pid after delay. A zero or
// negative delay means "no timer" and nil is returned.
func startKillTimer(pid int, delay time.Duration) *killTimer {
	if delay <= 0 {
		return nil
	}
	kt := &killTimer{pid: pid, done: make(chan struct{})}
	kt.timer = time.AfterFunc(delay, func() {
		defer close(kt.done)
		if kt.cancelled.Load() {
			return
		}
		_ = unix.Kill(pid, unix.SIGKILL)
	})
	return kt
}

// cancel prevents any future SIGKILL from this timer. Safe to call on a nil
// *killTimer (no-op) and safe to call more than once. If the timer had
// already fired by the time Stop is called, cancel blocks until that
// in-flight fire has either observed cancelled and backed off or sent the
// kill — so a caller that proceeds past cancel() (collecting metrics,
// cleaning up the cgroup, reusing the pid) never races a pending signal.
func (kt *killTimer) cancel() {
	if kt == nil {
		return
	}
	kt.cancelOnce.Do(func() {
		kt.cancelled.Store(true)
		if !kt.timer.Stop() {
			<-kt.done
		}
	})
}
