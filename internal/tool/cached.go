package tool

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/wayfinder/internal/cache"
)

// DefaultProviderTTL is how long real provider data is reused.
const DefaultProviderTTL = 15 * time.Minute

// CachedAdapter serves repeated lookups for the same entity from the result
// cache. Only successful lookups are stored; failures fall through to the
// caller every time, so placeholders are never cached.
type CachedAdapter[T any] struct {
	inner Adapter[T]
	cache *cache.Cache[T]
	ttl   time.Duration
}

// Cached wraps inner with c. A zero ttl uses DefaultProviderTTL.
func Cached[T any](inner Adapter[T], c *cache.Cache[T], ttl time.Duration) *CachedAdapter[T] {
	if ttl <= 0 {
		ttl = DefaultProviderTTL
	}
	return &CachedAdapter[T]{inner: inner, cache: c, ttl: ttl}
}

func (a *CachedAdapter[T]) Name() string { return a.inner.Name() }

func (a *CachedAdapter[T]) Lookup(ctx context.Context, q Query) (T, error) {
	v, _, err := a.cache.GetOrCompute(ctx, a.key(q), a.ttl, func(ctx context.Context) (T, error) {
		return a.inner.Lookup(ctx, q)
	})
	return v, err
}

func (a *CachedAdapter[T]) key(q Query) string {
	return cache.NormalizeKey(
		a.inner.Name(),
		q.Destination,
		q.Origin,
		strconv.Itoa(q.Days),
		sortedJoin(q.Interests),
		sortedJoin(q.DietaryRestrictions),
		q.BudgetLevel,
	)
}

func sortedJoin(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return strings.Join(sorted, "-")
}
