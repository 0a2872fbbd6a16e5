package elevation

import (
	"container/list"
	"math"
	"sync"
	"time"
)

// lookupKey is a position quantised to 0.1 m plus the surface kind
type lookupKey struct {
	northing int64
	easting  int64
	kind     Kind
}

func keyFor(northingM, eastingM float64, kind Kind) lookupKey {
	return lookupKey{
		northing: int64(math.Round(northingM * 10)),
		easting:  int64(math.Round(eastingM * 10)),
		kind:     kind,
	}
}

type cacheEntry struct {
	key       lookupKey
	value     float64
	ok        bool
	timestamp time.Time
}

// Cached wraps a Model with a thread-safe LRU cache with TTL
type Cached struct {
	model     Model
	capacity  int
	ttl       time.Duration
	items     map[lookupKey]*list.Element
	evictList *list.List
	mu        sync.Mutex

	// Metrics
	hits   uint64
	misses uint64
}

// NewCached creates a cache of up to capacity lookups; ttl <= 0 disables expiry
func NewCached(model Model, capacity int, ttl time.Duration) *Cached {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cached{
		model:     model,
		capacity:  capacity,
		ttl:       ttl,
		items:     make(map[lookupKey]*list.Element),
		evictList: list.New(),
	}
}

// ElevationAt returns a cached lookup or queries the wrapped model.
// Misses are cached too.
func (c *Cached) ElevationAt(northingM, eastingM float64, kind Kind) (float64, bool) {
	key := keyFor(northingM, eastingM, kind)

	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		if c.ttl <= 0 || time.Since(entry.timestamp) <= c.ttl {
			c.evictList.MoveToFront(elem)
			c.hits++
			c.mu.Unlock()
			return entry.value, entry.ok
		}
		c.removeElement(elem)
	}
	c.misses++
	c.mu.Unlock()

	value, ok := c.model.ElevationAt(northingM, eastingM, kind)
	c.set(key, value, ok)
	return value, ok
}

func (c *Cached) HasElevationData() bool {
	return c.model.HasElevationData()
}

func (c *Cached) MinMaxElevation() (float64, float64) {
	return c.model.MinMaxElevation()
}

func (c *Cached) set(key lookupKey, value float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.evictList.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value, entry.ok, entry.timestamp = value, ok, time.Now()
		return
	}

	elem := c.evictList.PushFront(&cacheEntry{key: key, value: value, ok: ok, timestamp: time.Now()})
	c.items[key] = elem

	if c.evictList.Len() > c.capacity {
		if oldest := c.evictList.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Clear removes all entries
func (c *Cached) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[lookupKey]*list.Element)
	c.evictList.Init()
}

// Size returns the number of cached lookups
func (c *Cached) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache statistics
func (c *Cached) Stats() (hits, misses uint64, hitRate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits, misses = c.hits, c.misses
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return
}

func (c *Cached) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
	c.evictList.Remove(elem)
}
