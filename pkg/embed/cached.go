package embed

import (
	"container/list"
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
)

// CachedProvider wraps a Provider with an LRU cache keyed by the FNV-1a
// hash of the payload. Providers are deterministic for identical payloads,
// so a hit can safely skip the backend entirely.
//
// A cache hit costs ~1µs against 50-200ms for a real embedding call, at
// roughly dimensions × 4 bytes of memory per cached vector.
//
// Thread-safe: all methods can be called from multiple goroutines.
type CachedProvider struct {
	base Provider

	mu      sync.Mutex
	cache   map[string]*list.Element
	lru     *list.List
	maxSize int

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key    string
	vector []float32
}

// NewCached wraps a provider with an LRU cache holding up to maxSize
// vectors (0 = 10000 default).
func NewCached(base Provider, maxSize int) *CachedProvider {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &CachedProvider{
		base:    base,
		cache:   make(map[string]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

// hashPayload creates a cache key using FNV-1a: fast, non-cryptographic,
// good enough for cache keying.
func hashPayload(payload string) string {
	h := fnv.New64a()
	h.Write([]byte(payload))
	return strconv.FormatUint(h.Sum64(), 36)
}

// cloneVector keeps callers and the cache from sharing backing arrays. A
// caller mutating a returned vector must not poison later hits.
func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}

// Embed returns the cached vector for the payload, or calls the base
// provider and caches the result. Returned slices are never shared with
// the cache; mutating one has no effect on later calls. Base provider
// errors are returned unchanged and never cached.
func (c *CachedProvider) Embed(ctx context.Context, payload string) ([]float32, error) {
	key := hashPayload(payload)

	c.mu.Lock()
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		vec := cloneVector(elem.Value.(*cacheEntry).vector)
		c.mu.Unlock()
		atomic.AddUint64(&c.hits, 1)
		return vec, nil
	}
	c.mu.Unlock()

	atomic.AddUint64(&c.misses, 1)

	vec, err := c.base.Embed(ctx, payload)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have filled the slot while we were embedding.
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return cloneVector(elem.Value.(*cacheEntry).vector), nil
	}

	for c.lru.Len() >= c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.lru.Remove(oldest)
		delete(c.cache, oldest.Value.(*cacheEntry).key)
	}

	// Store a private copy; the caller keeps the base provider's slice.
	c.cache[key] = c.lru.PushFront(&cacheEntry{key: key, vector: cloneVector(vec)})
	return vec, nil
}

// Dimensions returns the base provider's vector length.
func (c *CachedProvider) Dimensions() int {
	return c.base.Dimensions()
}

// Stats returns cache hit and miss counts since creation.
func (c *CachedProvider) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}
