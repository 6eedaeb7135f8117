package sandbox

import (
	"fmt"

	"github.com/pkg/errors"
)

// errorKind classifies a failure along the run() pipeline so callers can
// distinguish "the target misbehaved" from "the sandbox itself couldn't
// start". See spec §7.
type errorKind int

const (
	// ValidationError: caller-supplied Config is malformed.
	ValidationError errorKind = iota
	// SetupError: pre-clone OS resource acquisition failed.
	SetupError
	// ForkError: the clone(2) itself failed.
	ForkError
	// ChildSetupError: a step between child entry and execve failed.
	ChildSetupError
	// ExecError: execve(2) returned.
	ExecError
	// ReapingError: waitid failed, or cgroup metric collection failed.
	ReapingError
)

func (k errorKind) String() string {
	switch k {
	case ValidationError:
		return "validation"
	case SetupError:
		return "setup"
	case ForkError:
		return "fork"
	case ChildSetupError:
		return "child setup"
	case ExecError:
		return "exec"
	case ReapingError:
		return "reaping"
	default:
		return "unknown"
	}
}

// Error wraps a pipeline failure with the kind of step that produced it.
// The Cause chain is preserved via github.com/pkg/errors: the wrapped error
// reachable through Cause/Unwrap keeps the stack recorded by wrapf and the
// originating errno where available. Error itself prints only the kind and
// the wrapped message, for %v and %+v alike.
type Error struct {
	Kind errorKind
	err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Cause() error { return e.err }

func newError(kind errorKind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, err: err}
}

func wrapf(err error, kind errorKind, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, err: errors.Wrapf(err, format, args...)}
}

// IsKind reports whether err (or something it wraps) is a sandbox Error of
// the given kind.
func IsKind(err error, kind errorKind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
