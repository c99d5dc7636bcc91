package integration

import (
	"fmt"
	"strings"
)

// NotFoundError is returned when no manifest for a domain exists in any
// search root. Lookups that fail this way are never cached, so a retry after
// the integration appears on disk will succeed.
type NotFoundError struct {
	Domain string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("integration %q not found", e.Domain)
}

// InvalidDomainError is returned for structurally invalid domain strings.
// Dotted names address platforms, not integrations, and are rejected here.
type InvalidDomainError struct {
	Domain string
}

func (e *InvalidDomainError) Error() string {
	return fmt.Sprintf("invalid domain %q", e.Domain)
}

// ParseError is returned when a manifest file exists but cannot be parsed.
// The offending root is skipped; resolution falls through to the next root.
type ParseError struct {
	Domain string
	Path   string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error parsing manifest for %q at %s: %v", e.Domain, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// InvalidVersionError is returned when a custom integration's manifest lacks
// a version key or carries one that no accepted version strategy can parse.
// The integration was found but is unusable; this outcome is cached.
type InvalidVersionError struct {
	Domain  string
	Version string
}

func (e *InvalidVersionError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("custom integration %q has no version key in its manifest", e.Domain)
	}
	return fmt.Sprintf("custom integration %q has an invalid version %q in its manifest", e.Domain, e.Version)
}

// BlockedError is returned when a custom integration's version is known to
// break the host and has been blocked from loading.
type BlockedError struct {
	Domain  string
	Version string
	Reason  string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("version %s of custom integration %q %s and was blocked from loading", e.Version, e.Domain, e.Reason)
}

// CircularDependencyError is returned when dependency resolution closes a
// cycle. From holds the domain(s) on the traversal path that complete the
// cycle; To is the dependency being visited when it closed.
type CircularDependencyError struct {
	From []string
	To   string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s -> %s", strings.Join(e.From, ", "), e.To)
}

// DependencyNotFoundError is returned when a domain named in another
// integration's dependency list does not itself resolve. Domain is the
// missing dependency, not the integration that declared it.
type DependencyNotFoundError struct {
	Domain string
	Err    error
}

func (e *DependencyNotFoundError) Error() string {
	return fmt.Sprintf("dependency %q could not be resolved", e.Domain)
}

func (e *DependencyNotFoundError) Unwrap() error { return e.Err }
