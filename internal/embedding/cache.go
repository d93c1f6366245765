package embedding

import (
	"container/list"
	"context"
	"sync"
)

// Cache is an LRU cache for embeddings keyed by text.
type Cache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewCache creates a cache with the given capacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding for key if present.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

// Set stores the embedding for key, evicting the oldest entry if at capacity.
func (c *Cache) Set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}
	elem := c.lru.PushFront(&cacheEntry{key: key, value: value})
	c.cache[key] = elem
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// CachingEmbedder wraps an Embedder with an LRU cache.
type CachingEmbedder struct {
	inner Embedder
	cache *Cache
}

// NewCachingEmbedder wraps inner with a cache of the given capacity.
func NewCachingEmbedder(inner Embedder, capacity int) *CachingEmbedder {
	return &CachingEmbedder{inner: inner, cache: NewCache(capacity)}
}

// Embed returns the cached embedding when available, delegating otherwise.
func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if emb, ok := e.cache.Get(text); ok {
		return emb, nil
	}
	emb, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, emb)
	return emb, nil
}

// EmbedBatch embeds each text, using the cache per entry.
func (e *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

// Dimensions returns the wrapped embedder's dimension.
func (e *CachingEmbedder) Dimensions() int { return e.inner.Dimensions() }

// Close closes the wrapped embedder.
func (e *CachingEmbedder) Close() error { return e.inner.Close() }
