package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mm "github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeIntegrationDir creates an integration directory with the given
// manifest JSON and an empty component file.
func writeIntegrationDir(t *testing.T, root, domain, manifest string) {
	t.Helper()
	dir := filepath.Join(root, domain)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "component.lua"), []byte("-- component\n"), 0o644))
}

// simpleManifest builds a manifest JSON with the given domain and
// dependencies.
func simpleManifest(domain string, deps ...string) string {
	m := fmt.Sprintf("%q", domain)
	depJSON := "["
	for i, d := range deps {
		if i > 0 {
			depJSON += ", "
		}
		depJSON += fmt.Sprintf("%q", d)
	}
	depJSON += "]"
	return fmt.Sprintf(`{"domain": %s, "dependencies": %s}`, m, depJSON)
}

func newTestRegistry(t *testing.T, cfg RegistryConfig) *Registry {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	reg := NewRegistry(cfg)
	t.Cleanup(reg.host.Close)
	return reg
}

func TestRegistryGetBuiltin(t *testing.T) {
	builtin := t.TempDir()
	writeIntegrationDir(t, builtin, "light", simpleManifest("light"))

	reg := newTestRegistry(t, RegistryConfig{BuiltinRoots: []string{builtin}})

	integ, err := reg.Get(context.Background(), "light")
	require.NoError(t, err)
	assert.Equal(t, "light", integ.Domain())
	assert.True(t, integ.IsBuiltIn())
	assert.Equal(t, "hearth.components.light", integ.PkgPath())
	assert.Equal(t, filepath.Join(builtin, "light"), integ.FilePath())
}

func TestRegistryGetCached(t *testing.T) {
	builtin := t.TempDir()
	writeIntegrationDir(t, builtin, "light", simpleManifest("light"))

	reg := newTestRegistry(t, RegistryConfig{BuiltinRoots: []string{builtin}})
	ctx := context.Background()

	first, err := reg.Get(ctx, "light")
	require.NoError(t, err)
	second, err := reg.Get(ctx, "light")
	require.NoError(t, err)
	assert.Same(t, first, second, "repeat lookups must return the identical instance")
}

func TestRegistryInvalidDomain(t *testing.T) {
	reg := newTestRegistry(t, RegistryConfig{})
	ctx := context.Background()

	for _, domain := range []string{"", "light.hue"} {
		_, err := reg.Get(ctx, domain)
		var invalid *InvalidDomainError
		assert.ErrorAs(t, err, &invalid, "domain %q", domain)
	}
}

func TestRegistryNotFoundRetriable(t *testing.T) {
	builtin := t.TempDir()
	reg := newTestRegistry(t, RegistryConfig{BuiltinRoots: []string{builtin}})
	ctx := context.Background()

	_, err := reg.Get(ctx, "late")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "late", nf.Domain)

	// The integration appears after the failed lookup. Not-found is not
	// cached, so the retry succeeds.
	writeIntegrationDir(t, builtin, "late", simpleManifest("late"))

	integ, err := reg.Get(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, "late", integ.Domain())
}

func TestRegistrySingleFlight(t *testing.T) {
	builtin := t.TempDir()
	writeIntegrationDir(t, builtin, "light", simpleManifest("light"))

	reg := newTestRegistry(t, RegistryConfig{BuiltinRoots: []string{builtin}})

	var loads atomic.Int64
	reg.loadHook = func(string) {
		loads.Add(1)
		time.Sleep(20 * time.Millisecond)
	}

	const workers = 16
	results := make([]*Integration, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			integ, err := reg.Get(context.Background(), "light")
			assert.NoError(t, err)
			results[w] = integ
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int64(1), loads.Load(), "exactly one resolution attempt")
	for w := 1; w < workers; w++ {
		assert.Same(t, results[0], results[w])
	}
}

func TestRegistryWaiterContextCancel(t *testing.T) {
	builtin := t.TempDir()
	writeIntegrationDir(t, builtin, "slow", simpleManifest("slow"))

	reg := newTestRegistry(t, RegistryConfig{BuiltinRoots: []string{builtin}})

	entered := make(chan struct{})
	release := make(chan struct{})
	reg.loadHook = func(string) {
		close(entered)
		<-release
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := reg.Get(context.Background(), "slow")
		assert.NoError(t, err)
	}()
	<-entered

	// A waiter with a canceled context gives up without disturbing the
	// in-flight resolution.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reg.Get(ctx, "slow")
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done

	integ, ok := reg.GetLoaded("slow")
	require.True(t, ok)
	assert.Equal(t, "slow", integ.Domain())
}

func TestRegistryCustomOverridesBuiltin(t *testing.T) {
	builtin := t.TempDir()
	custom := t.TempDir()
	writeIntegrationDir(t, builtin, "light", simpleManifest("light"))
	writeIntegrationDir(t, custom, "light", `{"domain": "light", "version": "2.0.0"}`)

	reg := newTestRegistry(t, RegistryConfig{
		BuiltinRoots: []string{builtin},
		CustomRoots:  []string{custom},
	})

	integ, err := reg.Get(context.Background(), "light")
	require.NoError(t, err)
	assert.False(t, integ.IsBuiltIn())
	assert.Equal(t, "custom_components.light", integ.PkgPath())
	assert.Equal(t, "2.0.0", integ.Manifest().Version)
}

func TestRegistryCustomInvalidVersionNoFallback(t *testing.T) {
	builtin := t.TempDir()
	custom := t.TempDir()
	writeIntegrationDir(t, builtin, "light", simpleManifest("light"))
	writeIntegrationDir(t, custom, "light", `{"domain": "light"}`)

	reg := newTestRegistry(t, RegistryConfig{
		BuiltinRoots: []string{builtin},
		CustomRoots:  []string{custom},
	})
	ctx := context.Background()

	// The versionless custom integration shadows the built-in one; the
	// rejection must not fall back.
	_, err := reg.Get(ctx, "light")
	var invalid *InvalidVersionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "light", invalid.Domain)

	// The rejection is definitive and stays cached.
	_, err = reg.Get(ctx, "light")
	assert.ErrorAs(t, err, &invalid)
}

func TestRegistryBlockedVersion(t *testing.T) {
	custom := t.TempDir()
	writeIntegrationDir(t, custom, "fancy", `{"domain": "fancy", "version": "1.0.0"}`)

	reg := newTestRegistry(t, RegistryConfig{
		CustomRoots: []string{custom},
		Blocked: map[string]Blocked{
			"fancy": {
				LowestGoodVersion: mm.MustParse("2.0.0"),
				Reason:            "is known to crash the host",
			},
		},
	})

	_, err := reg.Get(context.Background(), "fancy")
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, "fancy", blocked.Domain)
	assert.Equal(t, "1.0.0", blocked.Version)
}

func TestRegistryBlockedVersionGoodRelease(t *testing.T) {
	custom := t.TempDir()
	writeIntegrationDir(t, custom, "fancy", `{"domain": "fancy", "version": "2.1.0"}`)

	reg := newTestRegistry(t, RegistryConfig{
		CustomRoots: []string{custom},
		Blocked: map[string]Blocked{
			"fancy": {LowestGoodVersion: mm.MustParse("2.0.0")},
		},
	})

	integ, err := reg.Get(context.Background(), "fancy")
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", integ.Manifest().Version)
}

func TestRegistryGetManyMixedOutcomes(t *testing.T) {
	builtin := t.TempDir()
	writeIntegrationDir(t, builtin, "light", simpleManifest("light"))
	writeIntegrationDir(t, builtin, "switch", simpleManifest("switch"))

	reg := newTestRegistry(t, RegistryConfig{BuiltinRoots: []string{builtin}})

	results := reg.GetMany(context.Background(), "light", "switch", "missing", "bad.domain")
	require.Len(t, results, 4)

	require.NoError(t, results["light"].Err)
	assert.Equal(t, "light", results["light"].Integration.Domain())
	require.NoError(t, results["switch"].Err)

	var nf *NotFoundError
	assert.ErrorAs(t, results["missing"].Err, &nf)
	var invalid *InvalidDomainError
	assert.ErrorAs(t, results["bad.domain"].Err, &invalid)
}

func TestRegistryInvalidateCustom(t *testing.T) {
	custom := t.TempDir()
	reg := newTestRegistry(t, RegistryConfig{CustomRoots: []string{custom}})
	ctx := context.Background()

	_, err := reg.Get(ctx, "newcomer")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	// Installed after the first scan: invisible until invalidation.
	writeIntegrationDir(t, custom, "newcomer", `{"domain": "newcomer", "version": "0.1.0"}`)
	_, err = reg.Get(ctx, "newcomer")
	require.ErrorAs(t, err, &nf, "stale index still misses the new integration")

	reg.InvalidateCustom()

	integ, err := reg.Get(ctx, "newcomer")
	require.NoError(t, err)
	assert.False(t, integ.IsBuiltIn())
}

func TestRegistrySafeModeSkipsCustom(t *testing.T) {
	builtin := t.TempDir()
	custom := t.TempDir()
	writeIntegrationDir(t, builtin, "light", simpleManifest("light"))
	writeIntegrationDir(t, custom, "light", `{"domain": "light", "version": "9.9.9"}`)

	reg := newTestRegistry(t, RegistryConfig{
		BuiltinRoots: []string{builtin},
		CustomRoots:  []string{custom},
		SafeMode:     true,
	})

	integ, err := reg.Get(context.Background(), "light")
	require.NoError(t, err)
	assert.True(t, integ.IsBuiltIn())
}

func TestRegistryCustomDomains(t *testing.T) {
	custom := t.TempDir()
	writeIntegrationDir(t, custom, "zeta", `{"domain": "zeta", "version": "1.0.0"}`)
	writeIntegrationDir(t, custom, "alpha", `{"domain": "alpha", "version": "1.0.0"}`)
	// Rejected for its missing version, but still present and still listed.
	writeIntegrationDir(t, custom, "broken", `{"domain": "broken"}`)

	reg := newTestRegistry(t, RegistryConfig{CustomRoots: []string{custom}})

	assert.Equal(t, []string{"alpha", "broken", "zeta"}, reg.CustomDomains())
}

func TestRegistryGetLoaded(t *testing.T) {
	builtin := t.TempDir()
	writeIntegrationDir(t, builtin, "light", simpleManifest("light"))

	reg := newTestRegistry(t, RegistryConfig{BuiltinRoots: []string{builtin}})

	_, ok := reg.GetLoaded("light")
	assert.False(t, ok, "GetLoaded must not trigger resolution")

	integ, err := reg.Get(context.Background(), "light")
	require.NoError(t, err)

	loaded, ok := reg.GetLoaded("light")
	require.True(t, ok)
	assert.Same(t, integ, loaded)
}

func TestValidDomain(t *testing.T) {
	assert.True(t, ValidDomain("light"))
	assert.True(t, ValidDomain("my_light"))
	assert.False(t, ValidDomain(""))
	assert.False(t, ValidDomain("light.hue"))
}
