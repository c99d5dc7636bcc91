package integration

import (
	"errors"
	"regexp"

	mm "github.com/Masterminds/semver/v3"
)

// VersionStrategy identifies which versioning scheme a version string follows.
type VersionStrategy int

// Accepted version strategies, in detection order. Calendar versions are
// checked before semver because a version like "2024.1.0" is valid in both
// schemes and should be classified as calver.
const (
	StrategyUnknown VersionStrategy = iota
	StrategyCalVer
	StrategySemVer
	StrategySimpleVer
	StrategyBuildVer
	StrategyPEP440
)

// String returns the strategy name.
func (s VersionStrategy) String() string {
	switch s {
	case StrategyCalVer:
		return "calver"
	case StrategySemVer:
		return "semver"
	case StrategySimpleVer:
		return "simplever"
	case StrategyBuildVer:
		return "buildver"
	case StrategyPEP440:
		return "pep440"
	default:
		return "unknown"
	}
}

// ErrUnknownVersion is returned when a version string matches no accepted
// strategy.
var ErrUnknownVersion = errors.New("version matches no accepted strategy")

var (
	calverPattern    = regexp.MustCompile(`^\d{4}\.\d{1,2}(\.\d+){0,2}([-.](dev|a|alpha|b|beta|rc)\.?\d*)?$`)
	simpleverPattern = regexp.MustCompile(`^\d+(\.\d+)+$`)
	buildverPattern  = regexp.MustCompile(`^\d+$`)
	pep440Pattern    = regexp.MustCompile(`^\d+(\.\d+)*((a|b|rc)\d+)?(\.post\d+)?(\.dev\d+)?$`)
)

// Version is a parsed integration version. Semver returns the underlying
// semantic version when the string parses as one, which blocked-version
// comparisons rely on; the other strategies carry the raw string only.
type Version struct {
	raw      string
	strategy VersionStrategy
	sem      *mm.Version
}

// ParseVersion classifies raw against the accepted version strategies.
// The first matching strategy wins.
func ParseVersion(raw string) (Version, error) {
	if raw == "" {
		return Version{}, ErrUnknownVersion
	}

	v := Version{raw: raw}

	// Semver parse is attempted regardless of strategy so comparisons work
	// for calver-classified versions too.
	if sem, err := mm.StrictNewVersion(raw); err == nil {
		v.sem = sem
	}

	switch {
	case calverPattern.MatchString(raw):
		v.strategy = StrategyCalVer
	case v.sem != nil:
		v.strategy = StrategySemVer
	case simpleverPattern.MatchString(raw):
		v.strategy = StrategySimpleVer
	case buildverPattern.MatchString(raw):
		v.strategy = StrategyBuildVer
	case pep440Pattern.MatchString(raw):
		v.strategy = StrategyPEP440
	default:
		return Version{}, ErrUnknownVersion
	}

	return v, nil
}

// String returns the raw version string.
func (v Version) String() string { return v.raw }

// Strategy returns the strategy the version was classified under.
func (v Version) Strategy() VersionStrategy { return v.strategy }

// Semver returns the semantic version when the raw string parses as one.
func (v Version) Semver() *mm.Version { return v.sem }
