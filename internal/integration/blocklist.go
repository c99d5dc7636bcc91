package integration

import (
	mm "github.com/Masterminds/semver/v3"
)

// Blocked describes a custom integration version range that is blocked from
// loading, typically because it is known to break the host. The host supplies
// the block list through RegistryConfig; nothing is blocked by default.
type Blocked struct {
	// LowestGoodVersion is the first version that is safe to load. When nil,
	// every version of the integration is blocked.
	LowestGoodVersion *mm.Version

	// Reason is included in the rejection diagnostic.
	Reason string
}

// Applies reports whether the block covers the given version. Versions that
// do not carry a comparable semantic version cannot be proven good and are
// treated as blocked.
func (b Blocked) Applies(v Version) bool {
	if b.LowestGoodVersion == nil {
		return true
	}
	sem := v.Semver()
	if sem == nil {
		return true
	}
	return sem.LessThan(b.LowestGoodVersion)
}
