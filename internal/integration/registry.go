package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/hearth/internal/component"
)

// Lookup is the per-domain outcome of a Registry lookup. Exactly one of
// Integration and Err is set.
type Lookup struct {
	Integration *Integration
	Err         error
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Logger for diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger

	// BuiltinRoots are the search roots for built-in integrations, in order.
	BuiltinRoots []string

	// CustomRoots are the search roots for custom integrations, in order.
	// Custom integrations override built-in ones with the same domain.
	CustomRoots []string

	// Blocked maps domains to blocked custom integration version ranges.
	Blocked map[string]Blocked

	// Host is the component import host. A fresh one is created when nil.
	Host *component.Host

	// SafeMode skips the custom roots entirely.
	SafeMode bool
}

// Registry is the process-wide cache from domain to resolved Integration.
//
// Each cache slot is in one of three states: absent, in flight, or resolved.
// At most one resolution attempt per domain is ever in flight; concurrent
// requesters of an in-flight domain wait for it and observe the identical
// outcome. Not-found outcomes are never cached so that lookups racing with
// custom-integration discovery stay retryable.
type Registry struct {
	logger       *zap.Logger
	builtinRoots []string
	customRoots  []string
	blocked      map[string]Blocked
	host         *component.Host
	safeMode     bool

	mu          sync.Mutex
	cache       map[string]*slot
	customIndex map[string]Lookup

	scans singleflight.Group

	// loadHook, when set, is called once per underlying resolution attempt.
	// Test seam for the single-flight contract.
	loadHook func(domain string)
}

// slot is one cache entry. done is open while resolution is in flight and
// closed once integ/err are final.
type slot struct {
	done  chan struct{}
	integ *Integration
	err   error
}

// NewRegistry creates a Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	host := cfg.Host
	if host == nil {
		host = component.NewHost(logger)
	}
	return &Registry{
		logger:       logger,
		builtinRoots: cfg.BuiltinRoots,
		customRoots:  cfg.CustomRoots,
		blocked:      cfg.Blocked,
		host:         host,
		safeMode:     cfg.SafeMode,
		cache:        make(map[string]*slot),
	}
}

// Host returns the component import host shared by all integrations.
func (r *Registry) Host() *component.Host { return r.host }

// Get resolves a single domain, using the cache when possible. Unlike
// GetMany, the per-domain outcome is returned as a plain error.
func (r *Registry) Get(ctx context.Context, domain string) (*Integration, error) {
	res := r.GetMany(ctx, domain)[domain]
	return res.Integration, res.Err
}

// GetLoaded returns the Integration for a domain that has already been
// resolved, without triggering or waiting for resolution.
func (r *Registry) GetLoaded(domain string) (*Integration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.cache[domain]
	if !ok {
		return nil, false
	}
	select {
	case <-s.done:
		return s.integ, s.err == nil
	default:
		return nil, false
	}
}

// GetMany resolves a batch of domains. Every requested domain gets its own
// outcome; one domain failing never aborts the others. Requested domains are
// partitioned into already-resolved, in-flight (waited on), and newly needed;
// newly needed domains are checked against the custom roots first, then
// resolved from the built-in roots in a single concurrent batch.
func (r *Registry) GetMany(ctx context.Context, domains ...string) map[string]Lookup {
	results := make(map[string]Lookup, len(domains))
	waiting := make(map[string]*slot)
	needed := make(map[string]*slot)

	r.mu.Lock()
	for _, domain := range domains {
		if _, ok := results[domain]; ok {
			continue
		}
		if _, ok := waiting[domain]; ok {
			continue
		}
		if _, ok := needed[domain]; ok {
			continue
		}
		if !ValidDomain(domain) {
			results[domain] = Lookup{Err: &InvalidDomainError{Domain: domain}}
			continue
		}
		if s, ok := r.cache[domain]; ok {
			select {
			case <-s.done:
				results[domain] = Lookup{Integration: s.integ, Err: s.err}
			default:
				waiting[domain] = s
			}
			continue
		}
		// Check-and-mark is a single step under the lock: no concurrent
		// caller can also believe it is the first resolver for this domain.
		s := &slot{done: make(chan struct{})}
		r.cache[domain] = s
		needed[domain] = s
	}
	r.mu.Unlock()

	if len(needed) > 0 {
		r.resolveBatch(needed)
		for domain, s := range needed {
			results[domain] = Lookup{Integration: s.integ, Err: s.err}
		}
	}

	for domain, s := range waiting {
		select {
		case <-s.done:
			results[domain] = Lookup{Integration: s.integ, Err: s.err}
		case <-ctx.Done():
			results[domain] = Lookup{Err: ctx.Err()}
		}
	}

	return results
}

// resolveBatch resolves the newly needed domains and fulfills their slots.
// It returns only after every slot in the batch is final.
func (r *Registry) resolveBatch(needed map[string]*slot) {
	if r.loadHook != nil {
		for domain := range needed {
			r.loadHook(domain)
		}
	}

	// Custom integrations take precedence over built-in ones with the same
	// domain, even when the custom one is rejected as unusable.
	custom := r.customComponents()
	remaining := make(map[string]*slot, len(needed))
	for domain, s := range needed {
		if res, ok := custom[domain]; ok {
			r.fulfill(domain, s, res.Integration, res.Err)
			continue
		}
		remaining[domain] = s
	}

	if len(remaining) == 0 {
		return
	}

	var g errgroup.Group
	for domain, s := range remaining {
		domain, s := domain, s
		g.Go(func() error {
			integ, err := resolveFromRoots(r.logger, r.host, r.builtinRoots, true, nil, domain)
			r.fulfill(domain, s, integ, err)
			return nil
		})
	}
	_ = g.Wait()
}

// fulfill finalizes a slot and releases its waiters. Not-found outcomes are
// evicted from the cache before the waiters are released; everything else,
// including definitively-invalid custom integrations, stays cached.
func (r *Registry) fulfill(domain string, s *slot, integ *Integration, err error) {
	s.integ = integ
	s.err = err

	var nf *NotFoundError
	if err != nil && errors.As(err, &nf) {
		r.mu.Lock()
		if r.cache[domain] == s {
			delete(r.cache, domain)
		}
		r.mu.Unlock()
	}

	close(s.done)
}

// customComponents returns the index of integrations found under the custom
// roots, scanning them once. Concurrent first-time callers share one scan.
func (r *Registry) customComponents() map[string]Lookup {
	if r.safeMode || len(r.customRoots) == 0 {
		return nil
	}

	r.mu.Lock()
	if idx := r.customIndex; idx != nil {
		r.mu.Unlock()
		return idx
	}
	r.mu.Unlock()

	idx, _, _ := r.scans.Do("custom", func() (interface{}, error) {
		index := r.scanCustomRoots()
		r.mu.Lock()
		r.customIndex = index
		r.mu.Unlock()
		return index, nil
	})
	return idx.(map[string]Lookup)
}

// scanCustomRoots walks the custom roots and resolves every integration
// directory found. First root wins per domain. Directories whose manifest is
// rejected (invalid version, blocked) are indexed with their error so the
// rejection shadows any built-in integration of the same domain.
func (r *Registry) scanCustomRoots() map[string]Lookup {
	index := make(map[string]Lookup)
	for _, root := range r.customRoots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			domain := entry.Name()
			if _, ok := index[domain]; ok {
				continue
			}
			if !ValidDomain(domain) {
				continue
			}
			if _, err := os.Stat(filepath.Join(root, domain, manifestFile)); err != nil {
				continue
			}

			integ, err := resolveFromRoots(r.logger, r.host, []string{root}, false, r.blocked, domain)
			if err != nil {
				var nf *NotFoundError
				if errors.As(err, &nf) {
					// Manifest was unparseable; this root is skipped and
					// built-in resolution may still serve the domain.
					continue
				}
				index[domain] = Lookup{Err: err}
				continue
			}
			index[domain] = Lookup{Integration: integ}
		}
	}

	r.logger.Debug("scanned custom integration roots",
		zap.Int("found", len(index)))
	return index
}

// InvalidateCustom drops the custom index so the next lookup rescans the
// custom roots. Called by discovery when the custom roots change on disk.
func (r *Registry) InvalidateCustom() {
	r.mu.Lock()
	r.customIndex = nil
	r.mu.Unlock()
}

// CustomDomains returns the sorted domains currently present under the
// custom roots, including ones rejected as unusable.
func (r *Registry) CustomDomains() []string {
	custom := r.customComponents()
	domains := make([]string, 0, len(custom))
	for domain := range custom {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}

// ValidDomain reports whether a requested domain string is structurally
// valid. Dotted names address platforms and are rejected.
func ValidDomain(domain string) bool {
	return domain != "" && !strings.Contains(domain, ".")
}
