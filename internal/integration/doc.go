// Package integration resolves hearth integrations: it locates and parses
// their manifests, caches them process-wide, and computes their dependency
// graphs.
//
// # Layout on disk
//
// An integration is a directory named after its domain, containing a
// manifest and its Lua component code:
//
//	components/hue/
//	├── manifest.json    # Identity, dependencies, requirements, version
//	├── component.lua    # Component entry point
//	└── light.lua        # A platform the integration ships
//
// Integrations are searched for under an ordered list of roots. Custom roots
// are consulted before the built-in root, so a custom integration overrides
// a built-in one with the same domain. Custom integrations must declare a
// version that parses under one of the accepted version strategies; without
// one they are rejected rather than silently replaced by the built-in copy.
//
// # Resolution
//
// The Registry is the single call surface:
//
//	reg := integration.NewRegistry(integration.RegistryConfig{
//	    Logger:       logger,
//	    BuiltinRoots: []string{builtinDir},
//	    CustomRoots:  []string{customDir},
//	})
//
//	integ, err := reg.Get(ctx, "hue")
//	results := reg.GetMany(ctx, "hue", "mqtt", "zone")
//
// Concurrent lookups of the same domain share one underlying manifest read.
// Batch lookups report a separate outcome per domain; a missing domain never
// aborts the rest of the batch, and "not found" is never cached so a lookup
// can be retried once the integration appears on disk.
//
// ResolveDependencies computes an integration's transitive dependency
// closure, detecting circular and missing dependencies. The outcome is
// cached on the Integration and is terminal either way.
package integration
