package snapshot

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

// PrefetchType is the value of the prefetch marker header.
type PrefetchType string

const (
	// PrefetchAuto marks requests synthesized by the prefetch pipeline.
	PrefetchAuto PrefetchType = "auto"
	// PrefetchNone marks requests coming from a real client.
	PrefetchNone PrefetchType = "none"
)

const (
	HeaderAuthorization  = "Authorization"
	HeaderAccept         = "Accept"
	HeaderAcceptLanguage = "Accept-Language"

	// SessionCookieKey is the cookie slot of a TargetRoute that holds the raw session cookie.
	SessionCookieKey = "session_cookie"
)

// HeadersData holds the header fields the pipeline reads from a request or response.
type HeadersData struct {
	Authorization  string   `json:"authorization,omitempty"`
	Accept         string   `json:"accept,omitempty"`
	AcceptLanguage string   `json:"acceptLanguage,omitempty"`
	PrefetchHeader string   `json:"prefetchHeader,omitempty"`
	SetCookie      []string `json:"setCookie,omitempty"`
}

// HeadersFrom captures the relevant fields of h.
// A missing prefetch header counts as a client request.
func HeadersFrom(h http.Header, prefetchHeader string) HeadersData {
	hd := HeadersData{
		Authorization:  h.Get(HeaderAuthorization),
		Accept:         h.Get(HeaderAccept),
		AcceptLanguage: h.Get(HeaderAcceptLanguage),
		PrefetchHeader: string(PrefetchNone),
		SetCookie:      h.Values("Set-Cookie"),
	}
	if v := h.Get(prefetchHeader); v != "" {
		hd.PrefetchHeader = v
	}
	return hd
}

// Field returns the header stored under the given field name
// (authorization, accept, acceptLanguage, prefetchHeader, setCookie).
// Unset or unknown fields return nil.
func (h HeadersData) Field(name string) any {
	var v string
	switch name {
	case "authorization":
		v = h.Authorization
	case "accept":
		v = h.Accept
	case "acceptLanguage":
		v = h.AcceptLanguage
	case "prefetchHeader":
		v = h.PrefetchHeader
	case "setCookie":
		if len(h.SetCookie) == 0 {
			return nil
		}
		entries := make([]any, len(h.SetCookie))
		for i, c := range h.SetCookie {
			entries[i] = c
		}
		return entries
	}
	if v == "" {
		return nil
	}
	return v
}

// CookiesData holds the session cookie of a request in raw "name=value" form.
type CookiesData struct {
	SessionCookie string `json:"sessionCookie,omitempty"`
}

// RequestSnapshot is the immutable view of a trigger request.
type RequestSnapshot struct {
	URI         string            `json:"uri"`
	Method      string            `json:"method"`
	Headers     HeadersData       `json:"headers"`
	Payload     map[string]any    `json:"payload,omitempty"`
	Cookies     CookiesData       `json:"cookies"`
	RouteName   string            `json:"routeName,omitempty"`
	RouteParams map[string]string `json:"routeParams,omitempty"`
	QueryParams map[string]any    `json:"queryParams,omitempty"`
}

// ResponseSnapshot is the immutable view of a trigger response.
type ResponseSnapshot struct {
	Status  int         `json:"status"`
	Headers HeadersData `json:"headers"`
	Content string      `json:"content,omitempty"`
}

// Options configures how snapshots read requests.
type Options struct {
	PrefetchHeader    string
	SessionCookieName string
}

// FromRequest captures r. The body, if read for the payload, is restored.
func FromRequest(r *http.Request, routeName string, routeParams map[string]string, opts Options) RequestSnapshot {
	rs := RequestSnapshot{
		URI:         r.URL.RequestURI(),
		Method:      r.Method,
		Headers:     HeadersFrom(r.Header, opts.PrefetchHeader),
		Payload:     payload(r),
		RouteName:   routeName,
		RouteParams: routeParams,
		QueryParams: ParseQuery(r.URL.Query()),
	}
	if c, err := r.Cookie(opts.SessionCookieName); err == nil {
		rs.Cookies.SessionCookie = c.Name + "=" + c.Value
	}
	return rs
}

// FromResponse captures a response from its parts.
func FromResponse(status int, header http.Header, body []byte, opts Options) ResponseSnapshot {
	return ResponseSnapshot{
		Status:  status,
		Headers: HeadersFrom(header, opts.PrefetchHeader),
		Content: string(body),
	}
}

func payload(r *http.Request) map[string]any {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return nil
	}
	ct := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(ct, "json"):
		var p map[string]any
		if json.Unmarshal(body, &p) != nil {
			return nil
		}
		return p
	case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil
		}
		return ParseQuery(form)
	}
	return nil
}

// TargetRoute is the fully resolved description of one concrete target dispatch.
type TargetRoute struct {
	RouteName   string            `json:"routeName"`
	Method      string            `json:"method"`
	RouteParams map[string]any    `json:"routeParams"`
	QueryParams map[string]any    `json:"queryParams"`
	Headers     map[string]string `json:"headers"`
	Cookies     map[string]string `json:"cookies"`
}

// MappedHeaders returns the headers forwarded to targets: authorization, accept and
// accept-language from hd, the prefetch marker set to auto, then overrides on top.
// Empty values are dropped.
func MappedHeaders(hd HeadersData, prefetchHeader string, overrides map[string]string) map[string]string {
	headers := map[string]string{}
	set := func(name, value string) {
		if value != "" {
			headers[name] = value
		}
	}
	set(HeaderAuthorization, hd.Authorization)
	set(HeaderAccept, hd.Accept)
	set(HeaderAcceptLanguage, hd.AcceptLanguage)
	for name, value := range overrides {
		set(name, value)
	}
	set(prefetchHeader, string(PrefetchAuto))
	return headers
}

// MappedCookies returns the trigger's session cookie with overrides on top.
// Nil overrides remove the entry.
func MappedCookies(cd CookiesData, overrides map[string]any) map[string]string {
	cookies := map[string]string{}
	if cd.SessionCookie != "" {
		cookies[SessionCookieKey] = cd.SessionCookie
	}
	for name, value := range overrides {
		if value == nil {
			delete(cookies, name)
			continue
		}
		if s, ok := value.(string); ok {
			cookies[name] = s
		}
	}
	return cookies
}

// SessionCookie extracts the cookie called name from a raw cookie string such as
// "laravel_session=abc; Path=/; HttpOnly". The value is returned as sent.
func SessionCookie(raw, name string) (string, string, bool) {
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		k, v, found := strings.Cut(part, "=")
		if part == "" || !found {
			continue
		}
		if k == name {
			return k, v, true
		}
	}
	return "", "", false
}
