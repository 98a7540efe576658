package cache

import (
	"time"
)

// CacheProvider is an interface for a cache provider.
// It stores and retrieves []byte values, which represent HTTP responses,
// and keeps track of expiration times of cache entries.
// Expired entries must be reported as missing.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Get returns the stored bytes for the given key.
	// The boolean reports whether a live entry was found.
	Get(key string) ([]byte, bool, error)
	// Put stores bytes under the given key until expires.
	Put(key string, expires time.Time, bytes []byte) error
	// Has checks if a live entry exists for the key.
	Has(key string) bool
	// Purge removes the entry for the given key, reporting whether one existed.
	Purge(key string) (bool, error)
	// Take returns and removes the entry for the given key in one step.
	// Concurrent callers for the same key never both receive the entry.
	Take(key string) ([]byte, bool, error)
	// Expire removes entries that expired before t and returns how many were removed.
	Expire(t time.Time) (int, error)
}

// Tagger is implemented by providers that can group entries under tags.
type Tagger interface {
	Tags(tags ...string) TaggedCache
}

// TaggedCache is a view of a provider scoped to a set of tags.
type TaggedCache interface {
	// Put stores an entry carrying all tags of the view.
	Put(key string, expires time.Time, bytes []byte) error
	// Clear removes every entry carrying all tags of the view, atomically.
	Clear() error
}

// Untagged hides the tag capability of a provider.
func Untagged(p CacheProvider) CacheProvider {
	return untagged{p}
}

type untagged struct {
	CacheProvider
}
