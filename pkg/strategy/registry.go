package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

// Factory builds a strategy. Composite strategies receive the registry
// so they can resolve their own steps.
type Factory func(r *Registry) any

type registration struct {
	kind    Kind
	factory Factory
}

// Registry maps strategy identifiers to factories.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]registration)}
}

// DefaultRegistry creates a registry holding all built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ForwardFromQuery, KindAtomic, func(*Registry) any { return fromQuery{} })
	r.Register(ForwardFromRequestValue, KindSource, func(*Registry) any { return forwardValue{} })
	r.Register(FromResponseBody, KindAtomic, func(*Registry) any { return fromBody{} })
	r.Register(FromResponseHeader, KindAtomic, func(*Registry) any { return fromHeader{} })
	r.Register(IncrementValue, KindTransform, func(*Registry) any { return increment{} })
	r.Register(Affix, KindTransform, func(*Registry) any { return affix{} })
	r.Register(ArraySort, KindTransform, func(*Registry) any { return arraySort{} })
	r.Register(ArrayLimit, KindTransform, func(*Registry) any { return arrayLimit{} })
	r.Register(ParseSetCookie, KindTransform, func(*Registry) any { return parseSetCookie{} })
	r.Register(JwtClaim, KindTransform, func(*Registry) any { return jwtClaim{} })

	r.Register(ForwardQueryParam, KindComposite, func(r *Registry) any { return forwardQueryParam{r} })
	r.Register(IncrementQueryParam, KindComposite, func(r *Registry) any { return incrementQueryParam{r} })
	r.Register(ResponseJwtToken, KindComposite, func(r *Registry) any { return responseJwtToken{r} })
	r.Register(ForwardSetCookieHeader, KindComposite, func(r *Registry) any { return forwardSetCookieHeader{r} })
	r.Register(ResponsePluck, KindComposite, func(r *Registry) any { return responsePluck{r} })
	return r
}

// Register adds or replaces a strategy.
func (r *Registry) Register(name string, kind Kind, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = registration{kind: kind, factory: factory}
}

// Resolve returns the strategy registered under name.
func (r *Registry) Resolve(name string) (Strategy, error) {
	r.mu.RLock()
	reg, ok := r.strategies[name]
	r.mu.RUnlock()
	if !ok || reg.factory == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	s, ok := reg.factory(r).(Strategy)
	if !ok {
		return nil, fmt.Errorf("%w: %q does not implement Handle", ErrInvalidStrategy, name)
	}
	return s, nil
}

// Kind returns the declared kind of a registered strategy.
func (r *Registry) Kind(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.strategies[name]
	return reg.kind, ok
}

// Names lists the registered identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply resolves and runs a single step with a nil input value.
func (r *Registry) Apply(step Step, req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot) (any, error) {
	return r.Run([]Step{step}, req, res)
}
