package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mdlh/query-server-go/internal/model"
)

// QueryEntry is one cached result set. Rows are shared with the stored
// result, so callers must treat them as read-only.
type QueryEntry struct {
	Columns   []model.ResultColumn
	Rows      [][]any
	RowCount  int
	Truncated bool
	CachedAt  time.Time
}

// QueryCache memoizes result sets of repeated read queries, keyed by the
// normalized statement text and its database/schema context, partitioned by
// identity scope. Oversized results are refused rather than evicting half the
// cache for one entry.
type QueryCache struct {
	inner    *Scoped[QueryEntry]
	maxBytes int
}

// NewQueryCache builds a query result cache. maxBytes bounds the size of a
// single cacheable entry, not the cache as a whole.
func NewQueryCache(maxEntries int, ttl time.Duration, maxBytes int) *QueryCache {
	return &QueryCache{
		inner:    &Scoped[QueryEntry]{lru: expirable.NewLRU[string, QueryEntry](maxEntries, nil, ttl)},
		maxBytes: maxBytes,
	}
}

// Key derives the cache key for a statement in its session context. Two
// statements differing only in whitespace or letter case share a key.
func (c *QueryCache) Key(scope, sqlText, database, schema string) string {
	h := sha256.New()
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeSQL(sqlText)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToUpper(database)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToUpper(schema)))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *QueryCache) Get(scope, key string) (QueryEntry, bool) {
	return c.inner.Get(scope, key)
}

// Put stores an entry unless its estimated size exceeds the per-entry bound.
// Returns false when the entry was refused.
func (c *QueryCache) Put(scope, key string, entry QueryEntry) bool {
	if estimateSize(&entry) > c.maxBytes {
		return false
	}
	entry.CachedAt = time.Now()
	c.inner.Set(scope, key, entry)
	return true
}

// InvalidateScope drops every cached result for one identity scope.
func (c *QueryCache) InvalidateScope(scope string) int {
	return c.inner.Invalidate(scope, "")
}

func (c *QueryCache) Stats() Stats {
	return c.inner.Stats()
}

// NormalizeSQL lowercases a statement and collapses runs of whitespace so
// trivially reformatted queries hit the same cache slot.
func NormalizeSQL(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// estimateSize approximates the in-memory footprint of an entry. It only has
// to be good enough to refuse obviously oversized result sets.
func estimateSize(e *QueryEntry) int {
	size := 0
	for _, c := range e.Columns {
		size += len(c.Name) + len(c.Type) + 32
	}
	for _, row := range e.Rows {
		size += 24
		for _, v := range row {
			switch t := v.(type) {
			case string:
				size += len(t) + 16
			case nil:
				size += 8
			default:
				size += 16
			}
		}
	}
	return size
}
