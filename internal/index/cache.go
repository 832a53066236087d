package index

// Cache is a get-or-compute memo table owned by a single index. Entries are
// written once and never replaced; Clear drops everything.
//
// Cache is not safe for concurrent use. Each session owns its own indexes.
type Cache[K comparable, V any] struct {
	name    string
	entries map[K]V
}

// NewCache returns an empty cache. name labels the hit/miss counters.
func NewCache[K comparable, V any](name string) *Cache[K, V] {
	return &Cache[K, V]{name: name, entries: make(map[K]V)}
}

// Get returns the cached value for key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.entries[key]
	return v, ok
}

// GetOrCompute returns the cached value for key, or calls compute and caches
// its result when compute reports found. Negative results are not cached.
func (c *Cache[K, V]) GetOrCompute(key K, compute func(K) (V, bool)) (V, bool) {
	if v, ok := c.entries[key]; ok {
		cacheHits.WithLabelValues(c.name).Inc()
		return v, true
	}
	cacheMisses.WithLabelValues(c.name).Inc()

	v, ok := compute(key)
	if !ok {
		var zero V
		return zero, false
	}
	c.entries[key] = v
	return v, true
}

// Add stores value under key unless key is already present. It reports
// whether the value was stored.
func (c *Cache[K, V]) Add(key K, value V) bool {
	if _, ok := c.entries[key]; ok {
		return false
	}
	c.entries[key] = value
	return true
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	return len(c.entries)
}

// Clear drops all entries.
func (c *Cache[K, V]) Clear() {
	clear(c.entries)
}
