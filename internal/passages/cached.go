package passages

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of passages to cache.
const DefaultCacheSize = 1000

// CachedStore wraps a Store with an LRU so repeated queries over the same
// documents do not refetch their text. Only misses reach the inner store.
// Ids the inner store has no text for are not cached.
type CachedStore struct {
	inner Store
	cache *lru.Cache[string, string]
}

// NewCachedStore wraps inner with an LRU of size entries.
func NewCachedStore(inner Store, size int) *CachedStore {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, string](size)
	return &CachedStore{inner: inner, cache: cache}
}

// Texts implements Store.
func (c *CachedStore) Texts(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	misses := make([]string, 0, len(ids))
	for _, id := range ids {
		if text, ok := c.cache.Get(id); ok {
			out[id] = text
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.inner.Texts(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, text := range fetched {
		c.cache.Add(id, text)
		out[id] = text
	}
	return out, nil
}
