package dextralhorn

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	serializer "github.com/always-cache/dextral-horn/pkg/response-serializer"
	tee "github.com/always-cache/dextral-horn/pkg/response-writer-tee"
	"github.com/always-cache/dextral-horn/pkg/routing"
	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

// Prefetch wraps a named route. After a successful response for a route that
// triggers rules, it queues the prefetch job. The client response is not changed.
func (e *Engine) Prefetch(next http.Handler) http.Handler {
	if !e.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if e.isPrefetch(r) {
			next.ServeHTTP(w, r)
			return
		}
		route, ok := routing.RouteFrom(r.Context())
		if !ok || len(e.rules.Match(route.Name, r.Method)) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		// snapshot before the handler consumes the body
		reqSnap := snapshot.FromRequest(r, route.Name, route.Params, e.snapshotOpts)
		rwtee := tee.NewResponseSaver(w)
		next.ServeHTTP(rwtee, r)

		e.trigger(reqSnap, rwtee.StatusCode(), rwtee.Header(), rwtee.Body())
	})
}

// trigger queues the prefetch job for a successful trigger response.
func (e *Engine) trigger(req snapshot.RequestSnapshot, status int, header http.Header, body []byte) {
	if status < 200 || status >= 300 {
		e.log.Trace().Str("trigger", req.RouteName).Int("status", status).Msg("Trigger not successful, skipping prefetch")
		return
	}
	e.enqueue(req, snapshot.FromResponse(status, header, body, e.snapshotOpts))
}

// Cache wraps a named route. GET requests with a prefetched response are
// answered from the cache, once; everything else reaches the route.
// A hit on a trigger route queues its prefetch job like Prefetch does, so
// Cache must wrap Prefetch: router.With(engine.Cache, engine.Prefetch).
func (e *Engine) Cache(next http.Handler) http.Handler {
	if !e.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs := CacheStatus{}
		// prefetch requests must reach the route to refresh the cache
		if e.isPrefetch(r) {
			cs.Forward(CacheStatusFwdBypass)
			w.Header().Set("Cache-Status", cs.String())
			next.ServeHTTP(w, r)
			return
		}
		route, ok := routing.RouteFrom(r.Context())
		if r.Method != http.MethodGet || !ok {
			cs.Forward(CacheStatusFwdMethod)
			w.Header().Add("Cache-Status", cs.String())
			next.ServeHTTP(w, r)
			return
		}

		target := e.targetFor(r, route)
		sRes, hit, err := e.responses.Pull(target)
		if err != nil {
			e.log.Error().Err(err).Str("route", route.Name).Msg("Could not retrieve from cache")
		}
		if !hit {
			cs.Forward(CacheStatusFwdUriMiss)
			w.Header().Add("Cache-Status", cs.String())
			e.logRequest(r, route.Name, cs)
			next.ServeHTTP(w, r)
			return
		}
		cs.Hit()
		triggers := len(e.rules.Match(route.Name, r.Method)) > 0
		var reqSnap snapshot.RequestSnapshot
		if triggers {
			reqSnap = snapshot.FromRequest(r, route.Name, route.Params, e.snapshotOpts)
		}
		body := e.sendStoredResponse(w, r, route.Name, sRes, cs)
		if triggers {
			e.trigger(reqSnap, sRes.Response.StatusCode, sRes.Response.Header, body)
		}
	})
}

func (e *Engine) isPrefetch(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get(e.prefetchHeader), string(snapshot.PrefetchAuto))
}

// targetFor describes an incoming request the way the pipeline describes
// its targets, so both map to the same cache key.
func (e *Engine) targetFor(r *http.Request, route routing.Route) snapshot.TargetRoute {
	params := make(map[string]any, len(route.Params))
	for k, v := range route.Params {
		params[k] = v
	}
	var cookies snapshot.CookiesData
	if c, err := r.Cookie(e.snapshotOpts.SessionCookieName); err == nil {
		cookies.SessionCookie = c.Name + "=" + c.Value
	}
	return snapshot.TargetRoute{
		RouteName:   route.Name,
		Method:      r.Method,
		RouteParams: params,
		QueryParams: snapshot.ParseQuery(r.URL.Query()),
		Headers:     snapshot.MappedHeaders(snapshot.HeadersFrom(r.Header, e.prefetchHeader), e.prefetchHeader, nil),
		Cookies:     snapshot.MappedCookies(cookies, nil),
	}
}

// sendStoredResponse writes the stored response to the client and returns its body.
func (e *Engine) sendStoredResponse(w http.ResponseWriter, r *http.Request, routeName string, sRes serializer.TimedResponse, cs CacheStatus) []byte {
	res := sRes.Response
	var body []byte
	if res.Body != nil {
		var err error
		body, err = io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			e.log.Error().Err(err).Msg("Could not read stored response body")
		}
	}
	copyHeader(w.Header(), res.Header)
	w.Header().Set("Age", strconv.Itoa(int(sRes.Age(time.Now()).Seconds())))
	// the stored response carries the status of its prefetch request
	w.Header().Set("Cache-Status", cs.String())
	w.WriteHeader(res.StatusCode)
	bytesWritten, err := w.Write(body)
	if err != nil {
		e.log.Error().Err(err).Msg("Could not write response body to client")
	}
	e.log.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
	e.logRequest(r, routeName, cs)
	return body
}

func (e *Engine) logRequest(r *http.Request, routeName string, cs CacheStatus) {
	isHit := 0
	if cs.status == CacheStatusHit {
		isHit = 1
	}
	e.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("route", routeName).
		Str("sourceIp", getRequestSourceIp(r)).
		Str("status", string(cs.status)).
		Str("fwd", string(cs.fwdReason)).
		Int("hit", isHit).
		Msg("Sending response to client")
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	// if not found, return
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
