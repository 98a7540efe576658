package strategy

import (
	"strings"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

// forwardQueryParam forwards a trigger query parameter that must be present.
type forwardQueryParam struct{ r *Registry }

func (s forwardQueryParam) Handle(req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot, opts Options, _ any) (any, error) {
	key, ok := opts.String("source_key")
	if !ok {
		return nil, missing(ForwardQueryParam, "source_key")
	}
	if _, present := req.QueryParams[key]; !present {
		return nil, missing(ForwardQueryParam, "source_key")
	}
	return s.r.Run([]Step{{Strategy: ForwardFromQuery, Options: opts}}, req, res)
}

// incrementQueryParam reads a trigger query parameter and increments it.
type incrementQueryParam struct{ r *Registry }

func (s incrementQueryParam) Handle(req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot, opts Options, _ any) (any, error) {
	return s.r.Run([]Step{
		{Strategy: ForwardFromQuery, Options: opts},
		{Strategy: IncrementValue, Options: opts},
	}, req, res)
}

// responseJwtToken turns a token in the response body into a bearer credential.
type responseJwtToken struct{ r *Registry }

func (s responseJwtToken) Handle(req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot, opts Options, _ any) (any, error) {
	return s.r.Run([]Step{
		{Strategy: FromResponseBody, Options: opts},
		{Strategy: Affix, Options: Options{"prefix": "Bearer "}},
	}, req, res)
}

// forwardSetCookieHeader picks the Set-Cookie entry of the trigger response
// that carries source_key.
type forwardSetCookieHeader struct{ r *Registry }

func (s forwardSetCookieHeader) Handle(req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot, opts Options, _ any) (any, error) {
	return s.r.Run([]Step{
		{Strategy: FromResponseHeader, Options: Options{"header_name": "setCookie"}},
		{Strategy: ParseSetCookie, Options: opts},
	}, req, res)
}

// responsePluck collects values from the response body, optionally sorted and limited.
type responsePluck struct{ r *Registry }

func (s responsePluck) Handle(req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot, opts Options, _ any) (any, error) {
	chain := []Step{{Strategy: FromResponseBody, Options: opts}}
	order, _ := opts.String("order")
	if order = strings.ToLower(order); order == orderAsc || order == orderDesc {
		chain = append(chain, Step{Strategy: ArraySort, Options: opts})
	}
	if opts.Has("limit") && opts.Int("limit", 0) > 0 {
		chain = append(chain, Step{Strategy: ArrayLimit, Options: opts})
	}
	return s.r.Run(chain, req, res)
}
