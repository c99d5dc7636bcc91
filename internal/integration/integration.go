package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/hearth/internal/component"
)

const (
	// PackageBuiltin is the package prefix for built-in integrations.
	PackageBuiltin = "hearth.components"

	// PackageCustom is the package prefix for custom integrations.
	PackageCustom = "custom_components"

	manifestFile  = "manifest.json"
	componentFile = "component.lua"
	luaExt        = ".lua"
)

// Integration is the resolved in-memory representation of one integration:
// its Manifest, where its code lives, and its one-shot dependency-resolution
// state. One Integration exists per domain per process run; it lives in the
// Registry for the lifetime of the process and is never mutated after
// construction except by the first ResolveDependencies call.
type Integration struct {
	logger   *zap.Logger
	manifest *Manifest
	pkgPath  string
	filePath string
	builtIn  bool
	host     *component.Host

	// Top-level files of the integration directory, used for platform
	// existence checks without touching the filesystem again.
	topLevelFiles map[string]struct{}

	mu              sync.Mutex
	resolution      ResolutionState
	allDependencies map[string]struct{}
}

// newIntegration constructs an Integration for a parsed manifest.
func newIntegration(logger *zap.Logger, host *component.Host, manifest *Manifest, pkgPath, filePath string, builtIn bool) *Integration {
	i := &Integration{
		logger:        logger,
		manifest:      manifest,
		pkgPath:       pkgPath,
		filePath:      filePath,
		builtIn:       builtIn,
		host:          host,
		topLevelFiles: make(map[string]struct{}),
	}

	if entries, err := os.ReadDir(filePath); err == nil {
		for _, entry := range entries {
			i.topLevelFiles[entry.Name()] = struct{}{}
		}
	}

	// An integration without dependencies is trivially resolved; no
	// traversal is ever needed.
	if len(manifest.Dependencies) == 0 {
		i.resolution = ResolutionResolved
		i.allDependencies = make(map[string]struct{})
	}

	logger.Info("loaded integration",
		zap.String("domain", manifest.Domain),
		zap.String("pkg_path", pkgPath))

	return i
}

// resolveFromRoots locates domain under the ordered search roots and
// constructs its Integration. The first root containing a manifest wins;
// roots with unparseable manifests are skipped. Custom lookups additionally
// require a valid version marker and reject blocked versions.
func resolveFromRoots(logger *zap.Logger, host *component.Host, roots []string, builtIn bool, blocked map[string]Blocked, domain string) (*Integration, error) {
	pkgRoot := PackageBuiltin
	if !builtIn {
		pkgRoot = PackageCustom
	}

	for _, root := range roots {
		manifestPath := filepath.Join(root, domain, manifestFile)
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}

		manifest, err := ParseManifest(data)
		if err != nil {
			perr := &ParseError{Domain: domain, Path: manifestPath, Err: err}
			logger.Error("error parsing manifest", zap.String("path", manifestPath), zap.Error(perr))
			continue
		}
		if manifest.Domain != domain {
			logger.Error("manifest domain does not match directory",
				zap.String("path", manifestPath),
				zap.String("domain", manifest.Domain),
				zap.Error(ErrDomainMismatch))
			continue
		}

		integ := newIntegration(logger, host, manifest, pkgRoot+"."+domain, filepath.Dir(manifestPath), builtIn)
		if builtIn {
			return integ, nil
		}

		logger.Warn("custom integration has not been tested by hearth; disable it if you experience issues",
			zap.String("domain", domain))

		version, err := ParseVersion(manifest.Version)
		if err != nil {
			// Found but unusable; this must not fall back to a built-in
			// integration of the same domain.
			logger.Error("custom integration blocked from loading: missing or invalid version key",
				zap.String("domain", domain),
				zap.String("version", manifest.Version))
			return nil, &InvalidVersionError{Domain: domain, Version: manifest.Version}
		}

		if block, ok := blocked[domain]; ok && block.Applies(version) {
			logger.Error("custom integration blocked from loading",
				zap.String("domain", domain),
				zap.String("version", manifest.Version),
				zap.String("reason", block.Reason))
			return nil, &BlockedError{Domain: domain, Version: manifest.Version, Reason: block.Reason}
		}

		return integ, nil
	}

	return nil, &NotFoundError{Domain: domain}
}

// Domain returns the integration's unique identifier.
func (i *Integration) Domain() string { return i.manifest.Domain }

// Name returns the display name.
func (i *Integration) Name() string { return i.manifest.Name }

// Manifest returns the integration's manifest.
func (i *Integration) Manifest() *Manifest { return i.manifest }

// Dependencies returns the domains that must be set up before this one.
func (i *Integration) Dependencies() []string { return i.manifest.Dependencies }

// AfterDependencies returns domains that, if present, load before this one.
func (i *Integration) AfterDependencies() []string { return i.manifest.AfterDependencies }

// Requirements returns the external package requirement specifiers.
func (i *Integration) Requirements() []string { return i.manifest.Requirements }

// PkgPath returns the package path used to import the integration's code.
func (i *Integration) PkgPath() string { return i.pkgPath }

// FilePath returns the integration's directory on disk.
func (i *Integration) FilePath() string { return i.filePath }

// IsBuiltIn reports whether the integration lives under the built-in root.
func (i *Integration) IsBuiltIn() bool { return i.builtIn }

// ResolutionState returns the dependency-resolution state.
func (i *Integration) ResolutionState() ResolutionState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.resolution
}

// AllDependenciesResolved reports whether dependency resolution has reached a
// terminal state.
func (i *Integration) AllDependenciesResolved() bool {
	return i.ResolutionState().Terminal()
}

// AllDependencies returns the transitive dependency closure. The second
// return is false until ResolveDependencies has succeeded.
func (i *Integration) AllDependencies() (map[string]struct{}, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.resolution != ResolutionResolved {
		return nil, false
	}
	deps := make(map[string]struct{}, len(i.allDependencies))
	for d := range i.allDependencies {
		deps[d] = struct{}{}
	}
	return deps, true
}

// ResolveDependencies computes the transitive dependency closure through reg.
// The outcome, success or failure, is terminal: repeat calls return the
// cached result without traversing again. Failures are logged, not returned;
// one integration's broken graph must not crash unrelated resolution work.
func (i *Integration) ResolveDependencies(ctx context.Context, reg *Registry) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch i.resolution {
	case ResolutionResolved:
		return true
	case ResolutionFailed:
		return false
	}

	i.resolution = ResolutionResolving

	closure, err := resolveClosure(ctx, reg, i)
	if err != nil {
		i.resolution = ResolutionFailed
		i.logResolutionFailure(err)
		return false
	}

	delete(closure, i.manifest.Domain)
	i.allDependencies = closure
	i.resolution = ResolutionResolved
	return true
}

// logResolutionFailure names the specific link in the chain that failed.
func (i *Integration) logResolutionFailure(err error) {
	switch e := err.(type) {
	case *CircularDependencyError:
		i.logger.Error("unable to resolve dependencies: circular dependency",
			zap.String("domain", i.manifest.Domain),
			zap.Strings("from", e.From),
			zap.String("to", e.To))
	case *DependencyNotFoundError:
		i.logger.Error("unable to resolve dependencies: unable to resolve (sub)dependency",
			zap.String("domain", i.manifest.Domain),
			zap.String("dependency", e.Domain),
			zap.Error(e.Err))
	default:
		i.logger.Error("unable to resolve dependencies",
			zap.String("domain", i.manifest.Domain),
			zap.Error(err))
	}
}

// Component imports the integration's component module, loading it on first
// use. Concurrent calls share one underlying import.
func (i *Integration) Component(ctx context.Context) (*component.Module, error) {
	return i.host.Import(ctx, i.manifest.Domain, filepath.Join(i.filePath, componentFile))
}

// PlatformExists reports whether the integration ships the named platform,
// without touching the filesystem.
func (i *Integration) PlatformExists(name string) bool {
	_, ok := i.topLevelFiles[name+luaExt]
	return ok
}

// Platform imports one of the integration's platform modules. A platform
// known to be missing is cached as such and fails without filesystem access.
func (i *Integration) Platform(ctx context.Context, name string) (*component.Module, error) {
	key := i.manifest.Domain + "." + name
	if i.host.Missing(key) {
		return nil, fmt.Errorf("%s: %w", key, component.ErrNotFound)
	}
	if !i.PlatformExists(name) {
		i.host.MarkMissing(key)
		return nil, fmt.Errorf("%s: %w", key, component.ErrNotFound)
	}
	return i.host.Import(ctx, key, filepath.Join(i.filePath, name+luaExt))
}

// Platforms returns the names of the platforms the integration ships.
func (i *Integration) Platforms() []string {
	names := make([]string, 0, len(i.topLevelFiles))
	for file := range i.topLevelFiles {
		if file == componentFile || !strings.HasSuffix(file, luaExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(file, luaExt))
	}
	sort.Strings(names)
	return names
}

// String returns a text representation of the integration.
func (i *Integration) String() string {
	return fmt.Sprintf("<Integration %s: %s>", i.manifest.Domain, i.pkgPath)
}
