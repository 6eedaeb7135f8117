package sandbox

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// errorPipe is the one-shot unidirectional channel from child to parent
// carrying either "ok" (EOF with no bytes written) or a multi-line
// diagnostic naming the first preparation step that failed (spec §4.B).
//
// It is backed by an AF_UNIX SOCK_STREAM pair rather than pipe(2), matching
// the original implementation's choice (a stream socket survives partial
// writes/reads identically to a pipe for this use, and socketpair(2) lets
// both SOCK_CLOEXEC and SOCK_STREAM be requested atomically in one call).
type errorPipeWriter struct{ f *os.File }
type errorPipeReader struct{ f *os.File }

// newErrorPipe creates the pair. The caller must close the ends it does not
// own immediately after clone (writer end lives only in the child, reader
// end only in the parent).
func newErrorPipe() (*errorPipeWriter, *errorPipeReader, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, wrapf(err, SetupError, "socketpair")
	}
	r := os.NewFile(uintptr(fds[0]), "carapace-error-pipe-r")
	w := os.NewFile(uintptr(fds[1]), "carapace-error-pipe-w")
	return &errorPipeWriter{f: w}, &errorPipeReader{f: r}, nil
}

func (w *errorPipeWriter) Close() error {
	if w == nil || w.f == nil {
		return nil
	}
	return w.f.Close()
}

func (r *errorPipeReader) Close() error {
	if r == nil || r.f == nil {
		return nil
	}
	return r.f.Close()
}

// writeError serializes err as a multi-line diagnostic and writes it to the
// pipe. Called at most once, from the child, right before os.Exit(101).
func (w *errorPipeWriter) writeError(err error) {
	if err == nil {
		return
	}
	msg := []byte(detailedMessage(err))
	_, _ = w.f.Write(msg)
}

// readResult reads to EOF: empty payload means the child reached execve
// successfully (close-on-exec closed the write end); nonempty payload means
// preparation failed and carries the diagnostic as the error message.
func (r *errorPipeReader) readResult() error {
	buf, err := io.ReadAll(r.f)
	if err != nil {
		return wrapf(err, ReapingError, "reading error pipe")
	}
	if len(buf) == 0 {
		return nil
	}
	return newError(ChildSetupError, errString(string(buf)))
}

type errString string

func (e errString) Error() string { return string(e) }

// detailedMessage renders an error chain as a multi-line diagnostic naming
// each wrapped step, outermost first and root cause last.
func detailedMessage(err error) string {
	type causer interface{ Cause() error }
	var lines []byte
	for err != nil {
		lines = append(lines, []byte(err.Error())...)
		lines = append(lines, '\n')
		c, ok := err.(causer)
		if !ok {
			break
		}
		next := c.Cause()
		if next == err || next == nil {
			break
		}
		err = next
	}
	return string(lines)
}
