package integration

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"
)

// Manifest describes one integration: its identity, load ordering and
// external requirements. It is immutable once parsed.
type Manifest struct {
	// Identity
	Domain string `json:"domain"` // Unique identifier (e.g., "mqtt", "hue")
	Name   string `json:"name"`   // Human-readable display name

	// Load ordering
	Dependencies      []string `json:"dependencies"`       // Domains that must be set up first
	AfterDependencies []string `json:"after_dependencies"` // Load-before-if-present, not required

	// External package requirements (opaque specifier strings)
	Requirements []string `json:"requirements"`

	// Version marker; required for custom (non-built-in) integrations
	Version string `json:"version"`

	// Raw manifest bytes, kept for opaque capability pass-through
	raw []byte
}

// Manifest validation errors.
var (
	// ErrMissingDomain is returned when the manifest has no domain key.
	ErrMissingDomain = errors.New("manifest: domain is required")

	// ErrInvalidDomainName is returned when the domain is not a bare
	// lowercase identifier. Dotted names address platforms, not integrations.
	ErrInvalidDomainName = errors.New("manifest: domain must be lowercase alphanumeric with underscores")

	// ErrDomainMismatch is returned when the manifest domain does not match
	// the directory the manifest was found in.
	ErrDomainMismatch = errors.New("manifest: domain does not match directory name")
)

// domainPattern validates integration domains.
var domainPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ParseManifest parses and validates manifest JSON.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.raw = data
	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// applyDefaults sets default values for optional fields.
func (m *Manifest) applyDefaults() {
	if m.Name == "" {
		m.Name = m.Domain
	}
}

// Validate checks that the manifest is structurally valid.
func (m *Manifest) Validate() error {
	if m.Domain == "" {
		return ErrMissingDomain
	}
	if !domainPattern.MatchString(m.Domain) {
		return fmt.Errorf("%w: %s", ErrInvalidDomainName, m.Domain)
	}
	return nil
}

// Capability returns the raw value of a capability declaration (config_flow,
// mqtt, ssdp, zeroconf, bluetooth, dhcp, usb, homekit, ...). Declarations are
// stored, never interpreted; discovery subsystems consume them downstream.
func (m *Manifest) Capability(key string) (gjson.Result, bool) {
	res := gjson.GetBytes(m.raw, key)
	return res, res.Exists()
}

// ConfigFlow reports whether the integration declares a config flow.
func (m *Manifest) ConfigFlow() bool {
	res, ok := m.Capability("config_flow")
	return ok && res.Bool()
}

// JSON returns the raw manifest bytes.
func (m *Manifest) JSON() []byte {
	return m.raw
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	if m.Version == "" {
		return m.Name
	}
	return fmt.Sprintf("%s v%s", m.Name, m.Version)
}
