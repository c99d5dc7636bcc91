package integration

import (
	"context"
	"errors"
	"sort"
)

// resolveClosure computes the full transitive set of domains that must be
// loaded before integ, walking its dependency graph depth-first through reg.
//
// loading holds the domains on the current traversal path and detects cycles
// within this one call; it is unrelated to the Registry's own in-flight
// bookkeeping, which de-duplicates work across calls. loaded accumulates the
// closure, including integ's own domain (the caller excludes it).
func resolveClosure(ctx context.Context, reg *Registry, integ *Integration) (map[string]struct{}, error) {
	loading := make(map[string]struct{})
	loaded := make(map[string]struct{})

	var walk func(*Integration) error
	walk = func(current *Integration) error {
		domain := current.Domain()
		deps := current.Dependencies()
		if len(deps) == 0 {
			loaded[domain] = struct{}{}
			return nil
		}

		loading[domain] = struct{}{}
		results := reg.GetMany(ctx, deps...)
		for _, depDomain := range deps {
			res := results[depDomain]
			if res.Err != nil {
				var nf *NotFoundError
				if errors.As(res.Err, &nf) {
					return &DependencyNotFoundError{Domain: nf.Domain, Err: res.Err}
				}
				return &DependencyNotFoundError{Domain: depDomain, Err: res.Err}
			}
			dep := res.Integration

			// A domain still on the traversal path must not appear in the
			// dependency's after_dependencies: the dependency would have to
			// load after an integration that depends on it. Checked before
			// the loaded short-circuit so every path edge is covered.
			if conflict := intersectLoading(loading, dep.AfterDependencies()); len(conflict) > 0 {
				return &CircularDependencyError{From: conflict, To: depDomain}
			}

			if _, ok := loaded[depDomain]; ok {
				continue
			}
			if _, ok := loading[depDomain]; ok {
				return &CircularDependencyError{From: []string{depDomain}, To: domain}
			}
			if err := walk(dep); err != nil {
				return err
			}
		}
		delete(loading, domain)
		loaded[domain] = struct{}{}
		return nil
	}

	if err := walk(integ); err != nil {
		return nil, err
	}
	return loaded, nil
}

// intersectLoading returns the sorted domains present in both the loading
// set and the after-dependency list.
func intersectLoading(loading map[string]struct{}, afters []string) []string {
	var conflict []string
	for _, after := range afters {
		if _, ok := loading[after]; ok {
			conflict = append(conflict, after)
		}
	}
	sort.Strings(conflict)
	return conflict
}
