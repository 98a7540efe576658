package responsecache

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/always-cache/dextral-horn/cache"
	"github.com/always-cache/dextral-horn/pkg/events"
	"github.com/always-cache/dextral-horn/pkg/identifier"
	serializer "github.com/always-cache/dextral-horn/pkg/response-serializer"
	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

func stored(body string) serializer.TimedResponse {
	res := &http.Response{
		StatusCode:    200,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"application/json"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       httptest.NewRequest("GET", "/products/1", nil),
	}
	now := time.Now()
	return serializer.TimedResponse{Response: res, RequestTime: now, ResponseTime: now}
}

func target(session string) snapshot.TargetRoute {
	return snapshot.TargetRoute{
		RouteName:   "products.show",
		Method:      "GET",
		RouteParams: map[string]any{"id": 1},
		QueryParams: map[string]any{},
		Headers:     map[string]string{},
		Cookies:     map[string]string{snapshot.SessionCookieKey: "laravel_session=" + session},
	}
}

func newCache(provider cache.CacheProvider, reporter events.Reporter) *ResponseCache {
	return New(provider, Options{
		Prefix:     "demon_dextral_horn",
		Identifier: identifier.New(identifier.DriverSession, "laravel_session"),
		Reporter:   reporter,
	})
}

func TestPutGetForget(t *testing.T) {
	recorder := &events.Recorder{}
	c := newCache(cache.NewMemCache(), recorder)

	key, err := c.Put(stored(`{"id":1}`), target("alice"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(key, "demon_dextral_horn:") {
		t.Fatalf("Unexpected key %s", key)
	}
	if !c.Has(target("alice")) {
		t.Fatalf("Expected entry for alice")
	}
	if c.Has(target("bob")) {
		t.Fatalf("Entry leaked to another session")
	}
	sRes, ok, err := c.Get(target("alice"))
	if err != nil || !ok {
		t.Fatalf("Get: %v %v", ok, err)
	}
	body, _ := io.ReadAll(sRes.Response.Body)
	if string(body) != `{"id":1}` {
		t.Fatalf("Body %s", body)
	}
	if !c.Has(target("alice")) {
		t.Fatalf("Get must not remove the entry")
	}
	if ok, _ := c.Forget(target("alice")); !ok {
		t.Fatalf("Forget found nothing")
	}
	if c.Has(target("alice")) {
		t.Fatalf("Entry survived Forget")
	}

	cached := recorder.Events(events.KindResponseCached)
	if len(cached) != 1 || cached[0].Key != key {
		t.Fatalf("Unexpected events %+v", cached)
	}
	if cached[0].Tags[0] != "demon_dextral_horn" || cached[0].Tags[1] != "demon_dextral_horn:products_show" {
		t.Fatalf("Unexpected tags %v", cached[0].Tags)
	}
}

func TestPullServesOnce(t *testing.T) {
	c := newCache(cache.NewMemCache(), &events.Recorder{})
	if _, err := c.Put(stored("once"), target("alice")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var hits int32
	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := c.Pull(target("alice")); ok {
				atomic.AddInt32(&hits, 1)
			}
		}()
	}
	wg.Wait()
	if hits != 1 {
		t.Fatalf("Expected exactly one hit, got %d", hits)
	}
	if c.Has(target("alice")) {
		t.Fatalf("Entry survived Pull")
	}
}

func TestClearByTags(t *testing.T) {
	c := newCache(cache.NewMemCache(), &events.Recorder{})
	other := target("alice")
	other.RouteName = "orders.index"
	c.Put(stored("a"), target("alice"))
	c.Put(stored("b"), other)

	if !c.Clear(c.RouteTag("products.show")) {
		t.Fatalf("Clear failed")
	}
	if c.Has(target("alice")) {
		t.Fatalf("Tagged entry survived")
	}
	if !c.Has(other) {
		t.Fatalf("Untouched entry was cleared")
	}
	if !c.Clear() || c.Has(other) {
		t.Fatalf("Clearing the default tag should remove everything")
	}
}

func TestClearWithoutTagSupport(t *testing.T) {
	recorder := &events.Recorder{}
	c := newCache(cache.Untagged(cache.NewMemCache()), recorder)
	c.Put(stored("a"), target("alice"))

	if c.Clear(c.RouteTag("products.show")) {
		t.Fatalf("Clear must fail without tag support")
	}
	if !c.Has(target("alice")) {
		t.Fatalf("Store was flushed")
	}
	failed := recorder.Events(events.KindTaggedCacheClearFailed)
	if len(failed) != 1 || !errors.Is(failed[0].Err, ErrTagsUnsupported) {
		t.Fatalf("Unexpected events %+v", failed)
	}
	if failed[0].Tags[0] != "demon_dextral_horn" {
		t.Fatalf("Default tag missing from %v", failed[0].Tags)
	}
}
