// Package resolver derives the concrete target requests of a rule target
// from the trigger request and response.
package resolver

import (
	"fmt"
	"net/http"

	"github.com/always-cache/dextral-horn/pkg/rules"
	"github.com/always-cache/dextral-horn/pkg/snapshot"
	"github.com/always-cache/dextral-horn/pkg/strategy"
)

type Resolver struct {
	registry       *strategy.Registry
	prefetchHeader string
}

// New creates a resolver. prefetchHeader is the name of the marker header
// set on every synthesized request.
func New(registry *strategy.Registry, prefetchHeader string) *Resolver {
	return &Resolver{registry: registry, prefetchHeader: prefetchHeader}
}

// Resolve runs all parameter resolvers for t and returns one TargetRoute per
// route param combination. Query params are returned in the string form a
// route sees once they have gone through the URL.
func (r *Resolver) Resolve(t rules.Target, req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot) ([]snapshot.TargetRoute, error) {
	combinations, err := r.RouteParams(t, req, res)
	if err != nil {
		return nil, err
	}
	query, err := r.QueryParams(t, req, res)
	if err != nil {
		return nil, err
	}
	headers, err := r.Headers(t, req, res)
	if err != nil {
		return nil, err
	}
	cookies, err := r.Cookies(t, req, res)
	if err != nil {
		return nil, err
	}
	query = snapshot.CanonicalQuery(query)
	targets := make([]snapshot.TargetRoute, 0, len(combinations))
	for _, params := range combinations {
		targets = append(targets, snapshot.TargetRoute{
			RouteName:   t.Route,
			Method:      t.TargetMethod(),
			RouteParams: params,
			QueryParams: query,
			Headers:     headers,
			Cookies:     cookies,
		})
	}
	return targets, nil
}

func (r *Resolver) resolve(params rules.Params, req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot) (map[string]any, error) {
	resolved := make(map[string]any, len(params))
	for _, name := range params.Names() {
		value, err := r.registry.Apply(params[name], req, res)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", name, err)
		}
		resolved[name] = value
	}
	return resolved, nil
}

// RouteParams resolves the declared route params and expands list values
// into one combination each. No declared params yields a single empty combination.
func (r *Resolver) RouteParams(t rules.Target, req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot) ([]map[string]any, error) {
	resolved, err := r.resolve(t.RouteParams, req, res)
	if err != nil {
		return nil, err
	}
	return Expand(resolved), nil
}

// QueryParams resolves the declared query params.
func (r *Resolver) QueryParams(t rules.Target, req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot) (map[string]any, error) {
	return r.resolve(t.QueryParams, req, res)
}

// Headers forwards the trigger's authorization, accept and accept-language
// headers, overlays resolved headers and marks the request as a prefetch.
func (r *Resolver) Headers(t rules.Target, req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot) (map[string]string, error) {
	resolved, err := r.resolve(t.Headers, req, res)
	if err != nil {
		return nil, err
	}
	overrides := make(map[string]string, len(resolved))
	for name, value := range resolved {
		if value != nil {
			overrides[http.CanonicalHeaderKey(name)] = snapshot.Stringify(value)
		}
	}
	return snapshot.MappedHeaders(req.Headers, r.prefetchHeader, overrides), nil
}

// Cookies forwards the trigger's session cookie and overlays resolved cookies.
// Cookies resolved to nil are dropped.
func (r *Resolver) Cookies(t rules.Target, req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot) (map[string]string, error) {
	resolved, err := r.resolve(t.Cookies, req, res)
	if err != nil {
		return nil, err
	}
	return snapshot.MappedCookies(req.Cookies, resolved), nil
}
