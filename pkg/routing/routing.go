// Package routing is a thin layer over chi that gives routes names,
// so handlers can be identified and their URLs rebuilt from parameters.
package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

var (
	ErrRouteNotFound = errors.New("routing: route not found")
	ErrMissingParam  = errors.New("routing: missing route parameter")
)

// placeholder matches chi URL parameters, with or without a regexp: {id} or {id:[0-9]+}.
var placeholder = regexp.MustCompile(`\{([^}:]+)(:[^}]*)?\}`)

// Route identifies the named route that is handling a request.
type Route struct {
	Name    string
	Pattern string
	Params  map[string]string
}

type routeKey struct{}

// RouteFrom returns the route stored in ctx by the router.
func RouteFrom(ctx context.Context) (Route, bool) {
	route, ok := ctx.Value(routeKey{}).(Route)
	return route, ok
}

type Router struct {
	mux         chi.Router
	mu          sync.RWMutex
	patterns    map[string]string
	middlewares []func(http.Handler) http.Handler
}

func New() *Router {
	return &Router{
		mux:      chi.NewRouter(),
		patterns: map[string]string{},
	}
}

// Use appends middlewares that run before routing, as in chi.
func (r *Router) Use(middlewares ...func(http.Handler) http.Handler) {
	r.mux.Use(middlewares...)
}

// With appends middlewares that run inside every named route registered
// afterwards. They see the route through RouteFrom.
func (r *Router) With(middlewares ...func(http.Handler) http.Handler) {
	r.middlewares = append(r.middlewares, middlewares...)
}

// Handle registers h as the route called name.
func (r *Router) Handle(method, name, pattern string, h http.Handler) {
	r.mu.Lock()
	r.patterns[name] = pattern
	r.mu.Unlock()

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}
	r.mux.Method(method, pattern, named(name, h))
}

func (r *Router) Get(name, pattern string, h http.HandlerFunc) {
	r.Handle(http.MethodGet, name, pattern, h)
}

func (r *Router) Post(name, pattern string, h http.HandlerFunc) {
	r.Handle(http.MethodPost, name, pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// URL builds the path of the route called name. Every placeholder must have
// a parameter; parameters without a placeholder are ignored.
func (r *Router) URL(name string, params map[string]any) (string, error) {
	r.mu.RLock()
	pattern, ok := r.patterns[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrRouteNotFound, name)
	}
	var missing error
	path := placeholder.ReplaceAllStringFunc(pattern, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		value, ok := params[key]
		if !ok || value == nil {
			if missing == nil {
				missing = fmt.Errorf("%w: %q for route %q", ErrMissingParam, key, name)
			}
			return m
		}
		return url.PathEscape(snapshot.Stringify(value))
	})
	if missing != nil {
		return "", missing
	}
	return path, nil
}

// named stores the route in the request context once chi has matched it.
func named(name string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		route := Route{Name: name, Params: map[string]string{}}
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			route.Pattern = rctx.RoutePattern()
			for i, key := range rctx.URLParams.Keys {
				if key == "*" {
					continue
				}
				route.Params[key] = rctx.URLParams.Values[i]
			}
		}
		h.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), routeKey{}, route)))
	})
}
