package cache

import (
	"sync"
	"time"
)

type memCacheEntry struct {
	expires time.Time
	bytes   []byte
	tags    map[string]bool
}

func (e memCacheEntry) live(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

// MemCache is an in-process provider with tag support.
type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]memCacheEntry
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]memCacheEntry),
	}
}

func (m MemCache) Get(key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[key]
	if !ok || !entry.live(time.Now()) {
		return nil, false, nil
	}
	return entry.bytes, true, nil
}

func (m MemCache) Put(key string, expires time.Time, bytes []byte) error {
	return m.put(key, expires, bytes, nil)
}

func (m MemCache) put(key string, expires time.Time, bytes []byte, tags []string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entry := memCacheEntry{expires: expires, bytes: bytes, tags: map[string]bool{}}
	for _, tag := range tags {
		entry.tags[tag] = true
	}
	m.db[key] = entry
	return nil
}

func (m MemCache) Has(key string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[key]
	return ok && entry.live(time.Now())
}

func (m MemCache) Purge(key string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.db[key]
	delete(m.db, key)
	return ok, nil
}

func (m MemCache) Take(key string) ([]byte, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entry, ok := m.db[key]
	if !ok {
		return nil, false, nil
	}
	delete(m.db, key)
	if !entry.live(time.Now()) {
		return nil, false, nil
	}
	return entry.bytes, true, nil
}

func (m MemCache) Expire(t time.Time) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	removed := 0
	for key, entry := range m.db {
		if !entry.live(t) {
			delete(m.db, key)
			removed++
		}
	}
	return removed, nil
}

func (m MemCache) Tags(tags ...string) TaggedCache {
	return memTagged{m, tags}
}

type memTagged struct {
	m    MemCache
	tags []string
}

func (t memTagged) Put(key string, expires time.Time, bytes []byte) error {
	return t.m.put(key, expires, bytes, t.tags)
}

func (t memTagged) Clear() error {
	t.m.mutex.Lock()
	defer t.m.mutex.Unlock()
	for key, entry := range t.m.db {
		if hasAll(entry.tags, t.tags) {
			delete(t.m.db, key)
		}
	}
	return nil
}

func hasAll(set map[string]bool, tags []string) bool {
	for _, tag := range tags {
		if !set[tag] {
			return false
		}
	}
	return true
}
