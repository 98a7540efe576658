// Package responsecache stores prefetched target responses per user.
package responsecache

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/always-cache/dextral-horn/cache"
	cachekey "github.com/always-cache/dextral-horn/pkg/cache-key"
	cachetag "github.com/always-cache/dextral-horn/pkg/cache-tag"
	"github.com/always-cache/dextral-horn/pkg/events"
	"github.com/always-cache/dextral-horn/pkg/identifier"
	serializer "github.com/always-cache/dextral-horn/pkg/response-serializer"
	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

// ErrTagsUnsupported is reported when the provider cannot scope entries by tag.
var ErrTagsUnsupported = errors.New("responsecache: cache store does not support tags")

const DefaultTTL = 60 * time.Second

type Options struct {
	// Prefix is the key namespace and the default tag of every entry.
	Prefix     string
	TTL        time.Duration
	Identifier identifier.UserIdentifier
	Reporter   events.Reporter
}

type ResponseCache struct {
	provider   cache.CacheProvider
	identifier identifier.UserIdentifier
	keyer      cachekey.CacheKeyer
	tagger     cachetag.TagGenerator
	reporter   events.Reporter
	ttl        time.Duration
}

func New(provider cache.CacheProvider, opts Options) *ResponseCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Identifier == nil {
		opts.Identifier = identifier.GuestIdentifier{}
	}
	if opts.Reporter == nil {
		opts.Reporter = events.NewLogReporter(log.Logger)
	}
	return &ResponseCache{
		provider:   provider,
		identifier: opts.Identifier,
		keyer:      cachekey.NewCacheKeyer(opts.Prefix),
		tagger:     cachetag.NewTagGenerator(opts.Prefix),
		reporter:   opts.Reporter,
		ttl:        opts.TTL,
	}
}

// Key returns the cache key of target for its user.
func (c *ResponseCache) Key(target snapshot.TargetRoute) (string, error) {
	return c.keyer.Generate(target, c.identifier.IdentifierFor(target))
}

// Tags returns the tags an entry for target is stored under.
func (c *ResponseCache) Tags(target snapshot.TargetRoute) []string {
	return c.tagger.Generate(target, c.identifier.IdentifierFor(target))
}

// RouteTag returns the tag shared by all entries of the named route.
func (c *ResponseCache) RouteTag(routeName string) string {
	return c.tagger.RouteTag(routeName)
}

// Put stores the response for target. Stores without tag support receive an
// untagged entry. The body of the response stays readable.
func (c *ResponseCache) Put(sRes serializer.TimedResponse, target snapshot.TargetRoute) (string, error) {
	key, err := c.Key(target)
	if err != nil {
		return "", err
	}
	bts, err := serializer.StoredResponseToBytes(sRes)
	if err != nil {
		return "", fmt.Errorf("serialize %s: %w", target.RouteName, err)
	}
	expires := time.Now().Add(c.ttl)
	tags := c.Tags(target)
	if tagger, ok := c.provider.(cache.Tagger); ok {
		err = tagger.Tags(tags...).Put(key, expires, bts)
	} else {
		log.Trace().Str("key", key).Msg("Cache store has no tags, storing untagged")
		err = c.provider.Put(key, expires, bts)
	}
	if err != nil {
		return "", err
	}
	c.reporter.ResponseCached(target, key, tags)
	return key, nil
}

// Has reports whether a live entry exists for target.
func (c *ResponseCache) Has(target snapshot.TargetRoute) bool {
	key, err := c.Key(target)
	if err != nil {
		return false
	}
	return c.provider.Has(key)
}

// Get returns the stored response for target without removing it.
func (c *ResponseCache) Get(target snapshot.TargetRoute) (serializer.TimedResponse, bool, error) {
	key, err := c.Key(target)
	if err != nil {
		return serializer.TimedResponse{}, false, err
	}
	bts, ok, err := c.provider.Get(key)
	if err != nil || !ok {
		return serializer.TimedResponse{}, false, err
	}
	return decode(bts)
}

// Forget removes the entry for target, reporting whether one existed.
func (c *ResponseCache) Forget(target snapshot.TargetRoute) (bool, error) {
	key, err := c.Key(target)
	if err != nil {
		return false, err
	}
	return c.provider.Purge(key)
}

// Pull returns the stored response for target and removes it.
// Of concurrent callers for the same target at most one gets the entry.
func (c *ResponseCache) Pull(target snapshot.TargetRoute) (serializer.TimedResponse, bool, error) {
	key, err := c.Key(target)
	if err != nil {
		return serializer.TimedResponse{}, false, err
	}
	bts, ok, err := c.provider.Take(key)
	if err != nil || !ok {
		return serializer.TimedResponse{}, false, err
	}
	return decode(bts)
}

// Clear removes all entries carrying the default tag and every given tag.
// Without tags every prefetched entry is removed. Stores without tag support
// are never flushed; the failure is reported and Clear returns false.
func (c *ResponseCache) Clear(tags ...string) bool {
	all := cachetag.Merge(c.tagger.DefaultTag, tags...)
	tagger, ok := c.provider.(cache.Tagger)
	if !ok {
		c.reporter.TaggedCacheClearFailed(all, ErrTagsUnsupported)
		return false
	}
	if err := tagger.Tags(all...).Clear(); err != nil {
		c.reporter.TaggedCacheClearFailed(all, err)
		return false
	}
	return true
}

func decode(bts []byte) (serializer.TimedResponse, bool, error) {
	sRes, err := serializer.BytesToStoredResponse(bts)
	if err != nil {
		return serializer.TimedResponse{}, false, err
	}
	return sRes, true, nil
}
