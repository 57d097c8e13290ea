// Package matchcache caches matching results for identical inputs.
//
// Keys are SHA-256 digests over a canonical JSON rendering of the
// operation name and its inputs, so any drift in the input snapshot
// produces a different key. Entries expire after a TTL and the cache is
// bounded, evicting least-recently-used entries under pressure.
package matchcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a bounded TTL cache for values of type V. Safe for concurrent
// use.
type Cache[V any] struct {
	lru    *expirable.LRU[string, V]
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache holding up to size entries for at most ttl each.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache[V]{
		lru: expirable.NewLRU[string, V](size, nil, ttl),
	}
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores a value under key.
func (c *Cache[V]) Set(key string, v V) {
	c.lru.Add(key, v)
}

// Clear drops all entries.
func (c *Cache[V]) Clear() {
	c.lru.Purge()
}

// Stats reports cache usage.
type Stats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Stats returns a snapshot of cache usage.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Size:   c.lru.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

// Key derives a cache key from an operation name and its inputs. Inputs
// are rendered as canonical JSON (map keys sorted) and hashed; values that
// cannot be marshaled fall back to their Go string rendering so keying
// never fails.
func Key(operation string, inputs ...any) string {
	h := sha256.New()
	h.Write([]byte(operation))
	for _, in := range inputs {
		raw, err := json.Marshal(in)
		if err != nil {
			raw = []byte(fmt.Sprintf("%#v", in))
		}
		h.Write([]byte{0})
		h.Write(raw)
	}
	return hex.EncodeToString(h.Sum(nil))
}
