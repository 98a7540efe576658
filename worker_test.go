package dextralhorn

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/always-cache/dextral-horn/cache"
	"github.com/always-cache/dextral-horn/pkg/events"
	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

var errDiskFull = errors.New("disk full")

// failingCache refuses every write.
type failingCache struct {
	cache.CacheProvider
}

func (failingCache) Put(key string, expires time.Time, bytes []byte) error {
	return errDiskFull
}

func TestFailingJobIsRetriedAndReported(t *testing.T) {
	a := newApp(t, Config{
		AuthDriver: "guest",
		QueueTries: 2,
		Cache:      failingCache{cache.NewMemCache()},
		Rules: parseRules(t, `
- trigger:
    route: home
  targets:
    - route: about
`),
	})
	var calls int
	a.router.Get("home", "/", func(w http.ResponseWriter, r *http.Request) {})
	a.router.Get("about", "/about", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("about"))
	})

	a.serve("GET", "/", nil)
	a.waitFor(t, events.KindJobFailed, 1)
	a.drain(t)

	if calls != 2 {
		t.Fatalf("Expected 2 attempts, got %d", calls)
	}
	failed := a.recorder.Events(events.KindJobFailed)
	if len(failed) != 1 {
		t.Fatalf("Expected one job failure, got %+v", a.recorder.Events())
	}
	if failed[0].Attempts != 2 || !errors.Is(failed[0].Err, errDiskFull) || failed[0].JobID == "" {
		t.Fatalf("Unexpected failure %+v", failed[0])
	}
}

func TestCloseEndsRetries(t *testing.T) {
	a := newApp(t, Config{
		AuthDriver: "guest",
		QueueTries: 10,
		Cache:      failingCache{cache.NewMemCache()},
		Rules: parseRules(t, `
- trigger:
    route: home
  targets:
    - route: about
`),
	})
	a.router.Get("home", "/", func(w http.ResponseWriter, r *http.Request) {})
	a.router.Get("about", "/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("about"))
	})

	a.serve("GET", "/", nil)
	start := time.Now()
	a.drain(t)

	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("Close waited %s for retries", took)
	}
	failed := a.recorder.Events(events.KindJobFailed)
	if len(failed) != 1 || failed[0].Attempts >= 10 || !errors.Is(failed[0].Err, errDiskFull) {
		t.Fatalf("Unexpected failures %+v", failed)
	}
}

func TestClosedQueueDropsJobs(t *testing.T) {
	a := newApp(t, Config{})
	a.drain(t)

	if a.engine.enqueue(snapshot.RequestSnapshot{RouteName: "home"}, snapshot.ResponseSnapshot{Status: 200}) {
		t.Fatalf("Closed engine accepted a job")
	}
}

func TestFullQueueDropsJobs(t *testing.T) {
	// no worker consumes this queue
	e := &Engine{queue: make(chan job, 1), log: zerolog.Nop(), queueName: "prefetch"}

	if !e.enqueue(snapshot.RequestSnapshot{RouteName: "home"}, snapshot.ResponseSnapshot{Status: 200}) {
		t.Fatalf("First job dropped")
	}
	if e.enqueue(snapshot.RequestSnapshot{RouteName: "home"}, snapshot.ResponseSnapshot{Status: 200}) {
		t.Fatalf("Full queue accepted a job")
	}
}
