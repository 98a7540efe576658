package routing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouteFromInsideHandler(t *testing.T) {
	r := New()
	var seen Route
	r.Get("products.show", "/products/{id}", func(w http.ResponseWriter, req *http.Request) {
		seen, _ = RouteFrom(req.Context())
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/products/42", nil))

	if seen.Name != "products.show" || seen.Pattern != "/products/{id}" {
		t.Fatalf("Unexpected route %+v", seen)
	}
	if seen.Params["id"] != "42" {
		t.Fatalf("Unexpected params %+v", seen.Params)
	}
}

func TestRouteMiddlewaresSeeRoute(t *testing.T) {
	r := New()
	var name string
	r.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			route, _ := RouteFrom(req.Context())
			name = route.Name
			next.ServeHTTP(w, req)
		})
	})
	r.Post("orders.store", "/orders", func(w http.ResponseWriter, req *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/orders", nil))

	if name != "orders.store" {
		t.Fatalf("Middleware saw route %q", name)
	}
}

func TestURL(t *testing.T) {
	r := New()
	r.Get("files.show", "/users/{user}/files/{name:[a-z ]+}", func(w http.ResponseWriter, req *http.Request) {})

	tests := []struct {
		params map[string]any
		want   string
		err    error
	}{
		{map[string]any{"user": 7, "name": "my file"}, "/users/7/files/my%20file", nil},
		{map[string]any{"user": "7", "name": "a", "extra": true}, "/users/7/files/a", nil},
		{map[string]any{"user": 7}, "", ErrMissingParam},
	}
	for _, test := range tests {
		got, err := r.URL("files.show", test.params)
		if !errors.Is(err, test.err) || got != test.want {
			t.Fatalf("URL(%v) = %q, %v; want %q, %v", test.params, got, err, test.want, test.err)
		}
	}

	if _, err := r.URL("nope", nil); !errors.Is(err, ErrRouteNotFound) {
		t.Fatalf("Expected ErrRouteNotFound, got %v", err)
	}
}
