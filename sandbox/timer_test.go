package sandbox

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartKillTimerZeroDelayReturnsNil(t *testing.T) {
	assert.Nil(t, startKillTimer(os.Getpid(), 0))
	assert.Nil(t, startKillTimer(os.Getpid(), -time.Second))
}

func TestKillTimerCancelIsNilSafe(t *testing.T) {
	var kt *killTimer
	assert.NotPanics(t, func() { kt.cancel() })
}

func TestKillTimerCancelPreventsSignal(t *testing.T) {
	// Cancelled well before the delay elapses: timer.Stop() succeeds, the
	// AfterFunc goroutine never runs at all, and cancel() returns without
	// waiting on kt.done.
	kt := startKillTimer(1<<30, 30*time.Millisecond)
	kt.cancel()
	assert.True(t, kt.cancelled.Load())
	select {
	case <-kt.done:
		t.Fatal("AfterFunc ran even though Stop should have suppressed it")
	default:
	}
}

func TestKillTimerCancelWaitsOutInFlightFire(t *testing.T) {
	// A pid that certainly doesn't exist: if cancel failed to suppress the
	// kill, the SIGKILL attempt would just fail silently (unix.Kill returns
	// ESRCH). Cancel is called only after sleeping past the delay, so
	// timer.Stop() returns false (already fired) and cancel() must block on
	// kt.done until the in-flight AfterFunc goroutine has finished deciding
	// whether to fire — guaranteeing no kill is still in flight once cancel
	// returns.
	kt := startKillTimer(1<<30, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	kt.cancel()
	select {
	case <-kt.done:
	default:
		t.Fatal("cancel() returned before the in-flight fire completed")
	}
}

func TestKillTimerCancelIsIdempotent(t *testing.T) {
	kt := startKillTimer(1<<30, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.NotPanics(t, func() {
		kt.cancel()
		kt.cancel()
	})
}
