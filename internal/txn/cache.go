package txn

import (
	"time"

	"github.com/golang/groupcache/lru"
)

// ttlCache bounds entries by count and age. It is deliberately not
// thread-safe: a page read transaction is bound to one goroutine, so the
// caches inherit that affinity (lru.Cache itself is unsynchronized).
type ttlCache struct {
	lru *lru.Cache
	ttl time.Duration
	now func() time.Time
}

type ttlEntry struct {
	value   any
	expires time.Time
}

func newTTLCache(maxEntries int, ttl time.Duration) *ttlCache {
	return &ttlCache{
		lru: lru.New(maxEntries),
		ttl: ttl,
		now: time.Now,
	}
}

func (c *ttlCache) Get(key lru.Key) (any, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(ttlEntry)
	if c.now().After(e.expires) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

func (c *ttlCache) Add(key lru.Key, value any) {
	c.lru.Add(key, ttlEntry{value: value, expires: c.now().Add(c.ttl)})
}

func (c *ttlCache) Clear() {
	c.lru.Clear()
}
