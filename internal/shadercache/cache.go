// Package shadercache memoizes shader compilation by source text.
package shadercache

import (
	"container/list"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

const (
	// shardCount must be a power of two.
	shardCount = 8
	shardMask  = shardCount - 1

	// DefaultCapacity is the per-shard entry limit used when New is given
	// a non-positive capacity.
	DefaultCapacity = 32
)

// Stats reports cache effectiveness.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

type entry struct {
	source string
	words  []uint32
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
}

// Cache is a sharded LRU of compiled SPIR-V keyed by source text. It is
// safe for concurrent use. Compile errors are not cached.
type Cache struct {
	shards   [shardCount]shard
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New returns a cache holding up to capacity programs per shard.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{capacity: capacity}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]*list.Element)
		c.shards[i].lru = list.New()
	}
	return c
}

func (c *Cache) shardFor(source string) *shard {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	return &c.shards[h.Sum64()&shardMask]
}

// GetOrCompile returns the cached words for source, or calls compile and
// caches its result. compile runs with the shard locked, so concurrent
// callers with the same source compile once.
func (c *Cache) GetOrCompile(source string, compile func(string) ([]uint32, error)) ([]uint32, error) {
	s := c.shardFor(source)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[source]; ok {
		s.lru.MoveToFront(el)
		c.hits.Add(1)
		return el.Value.(*entry).words, nil
	}
	c.misses.Add(1)

	words, err := compile(source)
	if err != nil {
		return nil, err
	}
	for s.lru.Len() >= c.capacity {
		oldest := s.lru.Back()
		s.lru.Remove(oldest)
		delete(s.entries, oldest.Value.(*entry).source)
		c.evictions.Add(1)
	}
	s.entries[source] = s.lru.PushFront(&entry{source: source, words: words})
	return words, nil
}

// Clear drops every entry. Statistics are kept.
func (c *Cache) Clear() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		clear(s.entries)
		s.lru.Init()
		s.mu.Unlock()
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	st := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		st.Entries += s.lru.Len()
		s.mu.Unlock()
	}
	return st
}
