package cache

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// keySep joins scope and key into one LRU key. The unit separator cannot
// appear in identity scopes or catalog names.
const keySep = "\x1f"

// Stats is a point-in-time snapshot of one cache's counters.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Scoped is a TTL+LRU cache whose entries are partitioned by an identity
// scope. Entries from one scope are never visible to another, and a scope can
// be invalidated without touching its neighbours.
type Scoped[V any] struct {
	lru    *expirable.LRU[string, V]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewScoped builds a scoped cache holding at most size entries, each living
// at most ttl after insertion.
func NewScoped[V any](size int, ttl time.Duration) *Scoped[V] {
	return &Scoped[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

func (c *Scoped[V]) Get(scope, key string) (V, bool) {
	v, ok := c.lru.Get(scope + keySep + key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *Scoped[V]) Set(scope, key string, value V) {
	c.lru.Add(scope+keySep+key, value)
}

// Invalidate removes entries. An empty key clears the whole scope; an empty
// scope clears everything. Returns the number of entries removed.
func (c *Scoped[V]) Invalidate(scope, key string) int {
	if scope == "" {
		n := c.lru.Len()
		c.lru.Purge()
		return n
	}
	if key != "" {
		if c.lru.Remove(scope + keySep + key) {
			return 1
		}
		return 0
	}
	prefix := scope + keySep
	removed := 0
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			if c.lru.Remove(k) {
				removed++
			}
		}
	}
	return removed
}

func (c *Scoped[V]) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.lru.Len(),
	}
}
