package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/always-cache/dextral-horn/pkg/routing"
	"github.com/always-cache/dextral-horn/pkg/rules"
	"github.com/always-cache/dextral-horn/pkg/strategy"
)

// newDemoRouter returns a router with access logging.
func newDemoRouter() *routing.Router {
	router := routing.New()
	router.Use(hlog.NewHandler(log.Logger))
	router.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("")
	}))
	return router
}

// registerDemoRoutes adds a small API: logging in prefetches the profile,
// listing products prefetches the next page and the newest products.
func registerDemoRoutes(router *routing.Router) {
	router.Post("auth.login", "/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"access_token":"demo-token"}}`)
	})
	router.Get("profile.show", "/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name":"demo","generatedAt":%q}`, time.Now().Format(time.RFC3339Nano))
	})
	router.Get("products.index", "/products", func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil || page < 1 {
			page = 1
		}
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		first := (page-1)*3 + 1
		fmt.Fprintf(w, `{"page":%d,"data":[{"id":%d},{"id":%d},{"id":%d}]}`, page, first, first+1, first+2)
	})
	router.Get("products.show", "/products/{product}", func(w http.ResponseWriter, r *http.Request) {
		route, _ := routing.RouteFrom(r.Context())
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":%q}`, route.Params["product"])
	})
}

func demoRules() rules.Rules {
	return rules.Rules{
		{
			ID:          "login",
			Description: "Prefetch the profile after logging in",
			Trigger:     rules.Trigger{Route: "auth.login", Method: http.MethodPost},
			Targets: []rules.Target{{
				Route: "profile.show",
				Headers: rules.Params{
					"Authorization": {Strategy: strategy.ResponseJwtToken, Options: strategy.Options{"position": "data.access_token"}},
				},
			}},
		},
		{
			ID:          "listing",
			Description: "Prefetch the next page and the newest products",
			Trigger:     rules.Trigger{Route: "products.index"},
			Targets: []rules.Target{
				{
					Route: "products.index",
					QueryParams: rules.Params{
						"page": {Strategy: strategy.IncrementQueryParam, Options: strategy.Options{"source_key": "page", "increment": 1}},
					},
				},
				{
					Route: "products.show",
					RouteParams: rules.Params{
						"product": {Strategy: strategy.ResponsePluck, Options: strategy.Options{"position": "data.*.id", "order": "desc", "limit": 2}},
					},
				},
			},
		},
	}
}
