package sandbox

import (
	"github.com/syndtr/gocapability/capability"
)

// dropBoundingCapabilities clears every capability from the bounding set,
// so that even a successful identity drop to a nonzero uid/gid (§4.F step
// 12) cannot later regain root-equivalent privilege through a setuid
// binary or file capability the target binary happens to invoke. This is
// additive hardening beyond the base spec's identity-drop step, enabled
// via Config.DropCapabilities.
func dropBoundingCapabilities() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return wrapf(err, ChildSetupError, "capabilities: load process capabilities")
	}
	if err := caps.Load(); err != nil {
		return wrapf(err, ChildSetupError, "capabilities: load current state")
	}
	caps.Clear(capability.BOUNDING)
	if err := caps.Apply(capability.BOUNDING); err != nil {
		return wrapf(err, ChildSetupError, "capabilities: clear bounding set")
	}
	return nil
}
