// Package cache implements the result cache shared by provider lookups and
// whole plans: values are reused until their TTL passes, and concurrent
// callers for the same key share one in-flight computation.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/felixgeelhaar/wayfinder/internal/metrics"
)

// DefaultMaxEntries bounds the number of cached values per cache.
const DefaultMaxEntries = 1000

// ComputeFunc produces the value for a key on a miss.
type ComputeFunc[V any] func(ctx context.Context) (V, error)

// Entry is a cached value with its expiry.
type Entry[V any] struct {
	Key       string
	Value     V
	ExpiresAt time.Time
}

// Cache is a TTL cache with single-flight population. Each entry carries its
// own TTL; the LRU bound caps memory regardless of TTL.
type Cache[V any] struct {
	name    string
	now     func() time.Time
	entries *lru.LRU[string, Entry[V]]
	group   singleflight.Group
	metrics *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]int
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithMetrics reports hits, misses and shared joins under the cache name.
func WithMetrics[V any](m *metrics.Metrics) Option[V] {
	return func(c *Cache[V]) { c.metrics = m }
}

// WithClock overrides time.Now for expiry decisions.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// New creates a cache holding at most maxEntries values.
func New[V any](name string, maxEntries int, opts ...Option[V]) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c := &Cache[V]{
		name: name,
		now:  time.Now,
		// Zero TTL disables the LRU's own expiry; per-entry expiry is
		// checked on read against ExpiresAt.
		entries:  lru.NewLRU[string, Entry[V]](maxEntries, nil, 0),
		inflight: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the fresh value for key, if any.
func (c *Cache[V]) Get(key string) (V, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.ExpiresAt) {
		c.entries.Remove(key)
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Set stores value under key for ttl.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.entries.Add(key, Entry[V]{Key: key, Value: value, ExpiresAt: c.now().Add(ttl)})
}

// Delete drops key.
func (c *Cache[V]) Delete(key string) {
	c.entries.Remove(key)
}

// Len returns the number of stored entries, fresh or not yet collected.
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}

// InFlight reports whether a computation for key is running.
func (c *Cache[V]) InFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[key] > 0
}

// GetOrCompute returns the fresh cached value for key, or runs fn to produce
// it. While fn runs, other callers for the same key wait for its result
// instead of running fn themselves. Errors are returned to every waiter and
// never cached. hit reports whether the value came from the cache.
//
// The computation runs detached from any single caller's cancellation so a
// caller giving up does not fail the others; a caller whose ctx ends stops
// waiting and gets ctx.Err().
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn ComputeFunc[V]) (value V, hit bool, err error) {
	if v, ok := c.Get(key); ok {
		c.metrics.RecordCache(c.name, true, false)
		return v, true, nil
	}

	c.mu.Lock()
	joined := c.inflight[key] > 0
	c.inflight[key]++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inflight[key]--
		if c.inflight[key] == 0 {
			delete(c.inflight, key)
		}
		c.mu.Unlock()
	}()

	c.metrics.RecordCache(c.name, false, joined)

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// A caller that arrived between our Get and DoChan may find the
		// value already stored by the previous flight.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn(detached)
		if err != nil {
			return v, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, false, fmt.Errorf("compute %s: %w", key, res.Err)
		}
		v, _ := res.Val.(V)
		return v, false, nil
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}
}

// NormalizeKey builds a cache key from entity names: case-folded, trimmed,
// inner whitespace collapsed to single dashes, parts joined by colons.
// "  New   York", "3 Days" -> "new-york:3-days".
func NormalizeKey(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		fields := strings.FieldsFunc(strings.ToLower(p), func(r rune) bool {
			return unicode.IsSpace(r) || r == ':' || r == '_'
		})
		out = append(out, strings.Join(fields, "-"))
	}
	return strings.Join(out, ":")
}
