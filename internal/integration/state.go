package integration

// ResolutionState tracks the one-shot dependency resolution of an Integration.
type ResolutionState int

// Resolution states.
const (
	// ResolutionUnresolved - dependency resolution has not been attempted.
	ResolutionUnresolved ResolutionState = iota

	// ResolutionResolving - dependency resolution is in progress.
	ResolutionResolving

	// ResolutionResolved - the transitive closure was computed successfully.
	ResolutionResolved

	// ResolutionFailed - resolution failed; the failure is terminal and is
	// never re-attempted for the lifetime of the process.
	ResolutionFailed
)

// String returns a string representation of the state.
func (s ResolutionState) String() string {
	switch s {
	case ResolutionUnresolved:
		return "unresolved"
	case ResolutionResolving:
		return "resolving"
	case ResolutionResolved:
		return "resolved"
	case ResolutionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal returns true once the state can no longer change.
func (s ResolutionState) Terminal() bool {
	return s == ResolutionResolved || s == ResolutionFailed
}
