// Package events reports what happened while prefetching.
// None of the events are fatal; they exist for logging and inspection.
package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

// Reporter receives prefetch events. Implementations must be safe for concurrent use.
type Reporter interface {
	// ResponseCached is called after a target response was stored under key.
	ResponseCached(target snapshot.TargetRoute, key string, tags []string)
	// NonCacheableResponse is called when the validator rejected a target response.
	NonCacheableResponse(target snapshot.TargetRoute, status int, results map[string]bool)
	// RouteDispatchFailed is called when a target could not be dispatched.
	RouteDispatchFailed(target snapshot.TargetRoute, err error)
	// TaggedCacheClearFailed is called when the store cannot clear by tags.
	TaggedCacheClearFailed(tags []string, err error)
	// JobFailed is called once when a prefetch job gave up.
	JobFailed(jobID string, routeName string, attempts int, err error)
}

type LogReporter struct {
	Logger zerolog.Logger
}

func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{Logger: logger.With().Str("component", "events").Logger()}
}

func (l *LogReporter) ResponseCached(target snapshot.TargetRoute, key string, tags []string) {
	l.Logger.Debug().
		Str("route", target.RouteName).
		Str("key", key).
		Strs("tags", tags).
		Msg("Response cached")
}

func (l *LogReporter) NonCacheableResponse(target snapshot.TargetRoute, status int, results map[string]bool) {
	event := l.Logger.Warn().
		Str("route", target.RouteName).
		Int("status", status)
	for check, ok := range results {
		event = event.Bool(check, ok)
	}
	event.Msg("Response not cacheable")
}

func (l *LogReporter) RouteDispatchFailed(target snapshot.TargetRoute, err error) {
	l.Logger.Error().
		Err(err).
		Str("route", target.RouteName).
		Str("method", target.Method).
		Msg("Could not dispatch prefetch route")
}

func (l *LogReporter) TaggedCacheClearFailed(tags []string, err error) {
	l.Logger.Warn().
		Err(err).
		Strs("tags", tags).
		Msg("Could not clear tagged cache")
}

func (l *LogReporter) JobFailed(jobID string, routeName string, attempts int, err error) {
	l.Logger.Error().
		Err(err).
		Str("job", jobID).
		Str("trigger", routeName).
		Int("attempts", attempts).
		Msg("Prefetch job failed")
}

// Reporters fans every event out to all of its members.
type Reporters []Reporter

func (rs Reporters) ResponseCached(target snapshot.TargetRoute, key string, tags []string) {
	for _, r := range rs {
		r.ResponseCached(target, key, tags)
	}
}

func (rs Reporters) NonCacheableResponse(target snapshot.TargetRoute, status int, results map[string]bool) {
	for _, r := range rs {
		r.NonCacheableResponse(target, status, results)
	}
}

func (rs Reporters) RouteDispatchFailed(target snapshot.TargetRoute, err error) {
	for _, r := range rs {
		r.RouteDispatchFailed(target, err)
	}
}

func (rs Reporters) TaggedCacheClearFailed(tags []string, err error) {
	for _, r := range rs {
		r.TaggedCacheClearFailed(tags, err)
	}
}

func (rs Reporters) JobFailed(jobID string, routeName string, attempts int, err error) {
	for _, r := range rs {
		r.JobFailed(jobID, routeName, attempts, err)
	}
}

type Kind string

const (
	KindResponseCached         Kind = "response_cached"
	KindNonCacheableResponse   Kind = "non_cacheable_response"
	KindRouteDispatchFailed    Kind = "route_dispatch_failed"
	KindTaggedCacheClearFailed Kind = "tagged_cache_clear_failed"
	KindJobFailed              Kind = "job_failed"
)

// Event is a single recorded event. Only the fields relevant to Kind are set.
type Event struct {
	Kind     Kind
	Target   snapshot.TargetRoute
	Key      string
	Tags     []string
	Status   int
	Results  map[string]bool
	JobID    string
	Attempts int
	Err      error
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events, optionally filtered by kind.
func (r *Recorder) Events(kinds ...Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if len(kinds) == 0 || hasKind(kinds, e.Kind) {
			out = append(out, e)
		}
	}
	return out
}

func hasKind(kinds []Kind, k Kind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func (r *Recorder) ResponseCached(target snapshot.TargetRoute, key string, tags []string) {
	r.add(Event{Kind: KindResponseCached, Target: target, Key: key, Tags: tags})
}

func (r *Recorder) NonCacheableResponse(target snapshot.TargetRoute, status int, results map[string]bool) {
	r.add(Event{Kind: KindNonCacheableResponse, Target: target, Status: status, Results: results})
}

func (r *Recorder) RouteDispatchFailed(target snapshot.TargetRoute, err error) {
	r.add(Event{Kind: KindRouteDispatchFailed, Target: target, Err: err})
}

func (r *Recorder) TaggedCacheClearFailed(tags []string, err error) {
	r.add(Event{Kind: KindTaggedCacheClearFailed, Tags: tags, Err: err})
}

func (r *Recorder) JobFailed(jobID string, routeName string, attempts int, err error) {
	r.add(Event{Kind: KindJobFailed, Target: snapshot.TargetRoute{RouteName: routeName}, JobID: jobID, Attempts: attempts, Err: err})
}
