// Package dispatcher runs target requests against the application's own router.
package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/always-cache/dextral-horn/pkg/events"
	tee "github.com/always-cache/dextral-horn/pkg/response-writer-tee"
	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

// URLBuilder reverses a route name and its parameters into a path.
type URLBuilder interface {
	URL(name string, params map[string]any) (string, error)
}

type Dispatcher struct {
	handler    http.Handler
	urls       URLBuilder
	cookieName string
	reporter   events.Reporter
}

// New creates a dispatcher re-entering handler. cookieName is the name of the session cookie.
func New(handler http.Handler, urls URLBuilder, cookieName string, reporter events.Reporter) *Dispatcher {
	if reporter == nil {
		reporter = events.NewLogReporter(log.Logger)
	}
	return &Dispatcher{handler: handler, urls: urls, cookieName: cookieName, reporter: reporter}
}

// Dispatch serves target through the handler and returns the recorded response.
// Every dispatch runs on its own request; failures are reported and answered
// with a generic 500 response, so Dispatch always returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, target snapshot.TargetRoute) (res *http.Response) {
	req, err := d.Request(ctx, target)
	if err != nil {
		d.reporter.RouteDispatchFailed(target, err)
		return failure(nil)
	}
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				err = errors.New("handler aborted")
			} else {
				err = fmt.Errorf("handler panic: %v", rec)
			}
			d.reporter.RouteDispatchFailed(target, err)
			res = failure(req)
		}
	}()
	log.Debug().Str("route", target.RouteName).Str("url", req.URL.String()).Msg("Dispatching prefetch request")
	saver := tee.NewResponseSaver(nil)
	d.handler.ServeHTTP(saver, req)
	return saver.Result(req)
}

// Request synthesizes the inbound request for target.
func (d *Dispatcher) Request(ctx context.Context, target snapshot.TargetRoute) (*http.Request, error) {
	path, err := d.urls.URL(target.RouteName, target.RouteParams)
	if err != nil {
		return nil, err
	}
	if query := snapshot.EncodeQuery(target.QueryParams); query != "" {
		path += "?" + query
	}
	method := target.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, path, nil)
	if err != nil {
		return nil, err
	}
	req.RequestURI = req.URL.RequestURI()
	for name, value := range target.Headers {
		req.Header.Set(name, value)
	}
	for key, raw := range target.Cookies {
		if key == snapshot.SessionCookieKey {
			if name, value, ok := snapshot.SessionCookie(raw, d.cookieName); ok {
				req.AddCookie(&http.Cookie{Name: name, Value: value})
			}
			continue
		}
		req.AddCookie(&http.Cookie{Name: key, Value: raw})
	}
	return req, nil
}

func failure(req *http.Request) *http.Response {
	body := []byte(http.StatusText(http.StatusInternalServerError))
	return &http.Response{
		Status:        "500 " + http.StatusText(http.StatusInternalServerError),
		StatusCode:    http.StatusInternalServerError,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
