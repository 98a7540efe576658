package resolver

import (
	"errors"
	"reflect"
	"testing"

	"github.com/always-cache/dextral-horn/pkg/rules"
	"github.com/always-cache/dextral-horn/pkg/snapshot"
	"github.com/always-cache/dextral-horn/pkg/strategy"
)

const prefetchHeader = "Demon-Prefetch-Call"

func newResolver() *Resolver {
	return New(strategy.DefaultRegistry(), prefetchHeader)
}

func TestExpand(t *testing.T) {
	got := Expand(map[string]any{"a": []any{1, 2}, "b": 3})
	want := []map[string]any{{"a": 1, "b": 3}, {"a": 2, "b": 3}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expanded to %v", got)
	}
}

func TestExpandNoParams(t *testing.T) {
	got := Expand(map[string]any{})
	if len(got) != 1 || len(got[0]) != 0 {
		t.Fatalf("Expanded to %v", got)
	}
}

func TestExpandCount(t *testing.T) {
	got := Expand(map[string]any{"a": []any{1, 2, 3}, "b": []any{"x", "y"}, "c": nil})
	if len(got) != 6 {
		t.Fatalf("Expanded to %d combinations", len(got))
	}
	if got[0]["a"] != 1 || got[0]["b"] != "x" || got[1]["b"] != "y" {
		t.Fatalf("Order not preserved: %v", got)
	}
}

func TestRouteParamsFanOut(t *testing.T) {
	target := rules.Target{
		Route: "products.show",
		RouteParams: rules.Params{"product": {
			Strategy: strategy.ResponsePluck,
			Options:  strategy.Options{"position": "data.*.id", "order": "desc", "limit": 2},
		}},
	}
	res := snapshot.ResponseSnapshot{Content: `{"data":[{"id":1},{"id":5},{"id":3}]}`}
	targets, err := newResolver().Resolve(target, snapshot.RequestSnapshot{}, res)
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 {
		t.Fatalf("Resolved %d targets", len(targets))
	}
	if targets[0].RouteParams["product"] != 5 || targets[1].RouteParams["product"] != 3 {
		t.Fatalf("Targets %+v", targets)
	}
	if targets[0].Method != "GET" {
		t.Fatalf("Method %s", targets[0].Method)
	}
}

func TestQueryParamsAreCanonical(t *testing.T) {
	target := rules.Target{
		Route: "products.index",
		QueryParams: rules.Params{"page": {
			Strategy: strategy.IncrementQueryParam,
			Options:  strategy.Options{"source_key": "page"},
		}},
	}
	req := snapshot.RequestSnapshot{QueryParams: map[string]any{"page": "1"}}
	targets, err := newResolver().Resolve(target, req, snapshot.ResponseSnapshot{})
	if err != nil {
		t.Fatal(err)
	}
	if got := targets[0].QueryParams["page"]; got != "2" {
		t.Fatalf("Page %#v", got)
	}
}

func TestHeadersForwardAndOverride(t *testing.T) {
	req := snapshot.RequestSnapshot{Headers: snapshot.HeadersData{
		Authorization:  "Bearer old",
		Accept:         "application/json",
		AcceptLanguage: "en-US",
	}}
	r := newResolver()

	headers, err := r.Headers(rules.Target{}, req, snapshot.ResponseSnapshot{})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"Authorization":   "Bearer old",
		"Accept":          "application/json",
		"Accept-Language": "en-US",
		prefetchHeader:    "auto",
	}
	if !reflect.DeepEqual(headers, want) {
		t.Fatalf("Headers %v", headers)
	}

	target := rules.Target{Headers: rules.Params{"authorization": {
		Strategy: strategy.ResponseJwtToken,
		Options:  strategy.Options{"position": "data.access_token"},
	}}}
	res := snapshot.ResponseSnapshot{Content: `{"data":{"access_token":"T"}}`}
	headers, err = r.Headers(target, req, res)
	if err != nil {
		t.Fatal(err)
	}
	if headers["Authorization"] != "Bearer T" {
		t.Fatalf("Authorization %q", headers["Authorization"])
	}
}

func TestPrefetchHeaderCannotBeOverridden(t *testing.T) {
	target := rules.Target{Headers: rules.Params{prefetchHeader: {
		Strategy: strategy.ForwardFromQuery,
		Options:  strategy.Options{"source_key": "p"},
	}}}
	req := snapshot.RequestSnapshot{QueryParams: map[string]any{"p": "none"}}
	headers, err := newResolver().Headers(target, req, snapshot.ResponseSnapshot{})
	if err != nil {
		t.Fatal(err)
	}
	if headers[prefetchHeader] != "auto" {
		t.Fatalf("Prefetch header %q", headers[prefetchHeader])
	}
}

func TestCookies(t *testing.T) {
	req := snapshot.RequestSnapshot{Cookies: snapshot.CookiesData{SessionCookie: "laravel_session=abc"}}
	r := newResolver()

	cookies, err := r.Cookies(rules.Target{}, req, snapshot.ResponseSnapshot{})
	if err != nil {
		t.Fatal(err)
	}
	if cookies[snapshot.SessionCookieKey] != "laravel_session=abc" {
		t.Fatalf("Cookies %v", cookies)
	}

	target := rules.Target{Cookies: rules.Params{snapshot.SessionCookieKey: {
		Strategy: strategy.ForwardSetCookieHeader,
		Options:  strategy.Options{"source_key": "laravel_session"},
	}}}
	res := snapshot.ResponseSnapshot{Headers: snapshot.HeadersData{SetCookie: []string{"laravel_session=new; Path=/"}}}
	cookies, err = r.Cookies(target, req, res)
	if err != nil {
		t.Fatal(err)
	}
	if cookies[snapshot.SessionCookieKey] != "laravel_session=new; Path=/" {
		t.Fatalf("Cookies %v", cookies)
	}

	// no Set-Cookie in the response resolves to nil, which drops the cookie
	cookies, err = r.Cookies(target, req, snapshot.ResponseSnapshot{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cookies[snapshot.SessionCookieKey]; ok {
		t.Fatalf("Cookies %v", cookies)
	}
}

func TestResolveFailsOnUnknownStrategy(t *testing.T) {
	target := rules.Target{RouteParams: rules.Params{"id": {Strategy: "nope"}}}
	_, err := newResolver().Resolve(target, snapshot.RequestSnapshot{}, snapshot.ResponseSnapshot{})
	if !errors.Is(err, strategy.ErrUnknownStrategy) {
		t.Fatalf("Expected unknown strategy, got %v", err)
	}
}
