package sandbox

import (
	"fmt"

	libseccomp "github.com/seccomp/libseccomp-golang"
	"github.com/willf/bitset"
)

// Action is a seccomp verdict: Allow lets the syscall through, Kill
// terminates the calling process with SIGSYS (spec §4.E, GLOSSARY).
type Action int

const (
	Allow Action = iota
	Kill
)

// CompareKind is the comparison a Comparator applies to one syscall
// argument (spec §3 SeccompProgram).
type CompareKind int

const (
	Eq CompareKind = iota
	Ne
	MaskedEq
)

// Comparator restricts a rule to the case where argument Arg (0..5) relates
// to Value by Kind. For MaskedEq, Arg is first ANDed with Mask before the
// comparison against Value.
type Comparator struct {
	Arg   uint
	Kind  CompareKind
	Mask  uint64
	Value uint64
}

// Rule is one entry in a SeccompProgram: Action taken on Syscall, optionally
// narrowed by Comparators. A rule with zero comparators is a flat per-
// syscall override; a rule with N comparators expands to N separate filter
// entries at load time, since libseccomp only accepts one AND-group per
// AddRuleConditional call (spec §3, §4.E).
type Rule struct {
	Action      Action
	Syscall     string
	Comparators []Comparator
}

// SeccompProgram is a default action plus an ordered list of rules (spec
// §3).
type SeccompProgram struct {
	DefaultAction Action
	Rules         []Rule
}

// IsTrivial reports whether loading this program would install a no-op BPF
// filter (default Allow, no rules) — loading is skipped in that case (spec
// §4.E "Loading is skipped entirely...").
func (p SeccompProgram) IsTrivial() bool {
	return p.DefaultAction == Allow && len(p.Rules) == 0
}

func scmpAction(a Action) libseccomp.ScmpAction {
	if a == Kill {
		return libseccomp.ActKill
	}
	return libseccomp.ActAllow
}

func scmpCompareOp(k CompareKind) libseccomp.ScmpCompareOp {
	switch k {
	case Ne:
		return libseccomp.CompareNotEqual
	case MaskedEq:
		return libseccomp.CompareMaskedEqual
	default:
		return libseccomp.CompareEqual
	}
}

func scmpCondition(c Comparator) (libseccomp.ScmpCondition, error) {
	if c.Kind == MaskedEq {
		return libseccomp.MakeCondition(c.Arg, scmpCompareOp(c.Kind), c.Mask, c.Value)
	}
	return libseccomp.MakeCondition(c.Arg, scmpCompareOp(c.Kind), c.Value)
}

// loadSeccompProgram installs p as a new filter layer and loads it into the
// kernel. Multiple programs may be loaded in sequence during child
// preparation (spec §4.F step 10: the IPC-forbidding addendum stacks on top
// of the main program); the kernel takes the most restrictive verdict
// across all installed layers.
//
// seenFlat tracks which syscall numbers already received a flat (no-
// comparator) override within this single program, so a caller-supplied
// rule list that overrides the same syscall twice is caught as a
// configuration mistake rather than silently installing two conflicting
// entries.
func loadSeccompProgram(p SeccompProgram) error {
	if p.IsTrivial() {
		return nil
	}

	filter, err := libseccomp.NewFilter(scmpAction(p.DefaultAction))
	if err != nil {
		return wrapf(err, ChildSetupError, "seccomp: create filter with default action")
	}
	defer filter.Release()

	seenFlat := bitset.New(2048)

	for _, r := range p.Rules {
		call, err := libseccomp.GetSyscallFromName(r.Syscall)
		if err != nil {
			return wrapf(err, ChildSetupError, "seccomp: unknown syscall %q", r.Syscall)
		}
		act := scmpAction(r.Action)

		if len(r.Comparators) == 0 {
			idx := uint(call)
			if idx < seenFlat.Len() && seenFlat.Test(idx) {
				return newError(ChildSetupError, fmt.Errorf("seccomp: duplicate flat rule for syscall %q", r.Syscall))
			}
			if idx < seenFlat.Len() {
				seenFlat.Set(idx)
			}
			if err := filter.AddRule(call, act); err != nil {
				return wrapf(err, ChildSetupError, "seccomp: add rule for %q", r.Syscall)
			}
			continue
		}

		for _, c := range r.Comparators {
			cond, err := scmpCondition(c)
			if err != nil {
				return wrapf(err, ChildSetupError, "seccomp: build condition for %q", r.Syscall)
			}
			if err := filter.AddRuleConditional(call, act, []libseccomp.ScmpCondition{cond}); err != nil {
				return wrapf(err, ChildSetupError, "seccomp: add conditional rule for %q", r.Syscall)
			}
		}
	}

	if err := filter.Load(); err != nil {
		return wrapf(err, ChildSetupError, "seccomp: load filter")
	}
	return nil
}
