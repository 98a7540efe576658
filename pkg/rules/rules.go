package rules

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/always-cache/dextral-horn/pkg/strategy"
)

type Rules []Rule

// Rule maps a trigger route to the targets prefetched after it.
type Rule struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Trigger     Trigger  `yaml:"trigger"`
	Targets     []Target `yaml:"targets"`
}

type Trigger struct {
	Route  string `yaml:"route"`
	Method string `yaml:"method"`
}

// Target describes one route to prefetch and how to derive its inputs.
type Target struct {
	Method      string `yaml:"method"`
	Route       string `yaml:"route"`
	RouteParams Params `yaml:"route_params"`
	QueryParams Params `yaml:"query_params"`
	Headers     Params `yaml:"headers"`
	Cookies     Params `yaml:"cookies"`
}

// Params maps a parameter name to the step resolving it.
type Params map[string]strategy.Step

// Names returns the parameter names in sorted order.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TargetMethod returns the upper-cased target method, GET when unset.
func (t Target) TargetMethod() string {
	return normalizeMethod(t.Method)
}

func normalizeMethod(method string) string {
	if method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(method)
}

// Match returns the targets of the first rule triggered by the given route and method.
// No matching rule yields no targets.
func (r Rules) Match(routeName, method string) []Target {
	method = normalizeMethod(method)
	log.Trace().Msgf("Finding rule for trigger %s:%s", method, routeName)
	for _, rule := range r {
		if rule.Trigger.Route != routeName {
			continue
		}
		if normalizeMethod(rule.Trigger.Method) != method {
			continue
		}
		log.Trace().Str("rule", rule.ID).Msgf("Matched rule with %d targets", len(rule.Targets))
		return rule.Targets
	}
	return nil
}

// Lint resolves every configured step against the registry.
func (r Rules) Lint(registry *strategy.Registry) error {
	var errs []error
	for i, rule := range r {
		id := rule.ID
		if id == "" {
			id = fmt.Sprintf("#%d", i)
		}
		if rule.Trigger.Route == "" {
			errs = append(errs, fmt.Errorf("rule %s: trigger route is empty", id))
		}
		for _, target := range rule.Targets {
			if target.Route == "" {
				errs = append(errs, fmt.Errorf("rule %s: target route is empty", id))
			}
			for _, params := range []Params{target.RouteParams, target.QueryParams, target.Headers, target.Cookies} {
				for _, name := range params.Names() {
					if _, err := registry.Resolve(params[name].Strategy); err != nil {
						errs = append(errs, fmt.Errorf("rule %s, target %s, param %s: %w", id, target.Route, name, err))
					}
				}
			}
		}
	}
	return errors.Join(errs...)
}
