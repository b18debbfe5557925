// Package vat implements the Virtual Allocation Table used by virtual partitions on
// write-once media: the on-disk table and a bounded lookup cache in front of it.
package vat

import (
	"sync"

	"github.com/bgrewell/udf-kit/pkg/consts"
)

// Stats are the cache counters. They are for observability and never affect lookups.
type Stats struct {
	Slots     int    `json:"slots" yaml:"slots"`
	Entries   int    `json:"entries" yaml:"entries"`
	Hits      uint64 `json:"hits" yaml:"hits"`
	Misses    uint64 `json:"misses" yaml:"misses"`
	Inserts   uint64 `json:"inserts" yaml:"inserts"`
	Evictions uint64 `json:"evictions" yaml:"evictions"`
}

type slot struct {
	key   uint32
	value uint32
	used  bool
}

// Cache is a fixed capacity open addressing map from logical to physical block. Entries may be
// dropped at any time by a colliding insert; a miss only means the table has to be read again.
type Cache struct {
	mu      sync.Mutex
	slots   []slot
	mask    uint32
	probes  int
	entries int
	stats   Stats
}

// NewCache creates a cache with capacity rounded up to a power of two. Non-positive arguments
// select the defaults of 8192 slots and 8 probes.
func NewCache(slots, probes int) *Cache {
	if slots <= 0 {
		slots = consts.DEFAULT_VAT_CACHE_SLOTS
	}
	if probes <= 0 {
		probes = consts.DEFAULT_VAT_CACHE_PROBES
	}
	capacity := 1
	for capacity < slots {
		capacity <<= 1
	}
	if probes > capacity {
		probes = capacity
	}
	return &Cache{
		slots:  make([]slot, capacity),
		mask:   uint32(capacity - 1),
		probes: probes,
	}
}

// mix spreads sequential block numbers across the table (xorshift32).
func mix(key uint32) uint32 {
	key ^= key << 13
	key ^= key >> 17
	key ^= key << 5
	return key
}

// index returns the slot of the i-th probe for key.
func (c *Cache) index(key uint32, i int) uint32 {
	return (mix(key) + uint32(i)) & c.mask
}

// Lookup returns the physical block cached for lbn. Every probe slot is checked since an
// eviction may have emptied a slot ahead of the key.
func (c *Cache) Lookup(lbn uint32) (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.probes; i++ {
		s := &c.slots[c.index(lbn, i)]
		if s.used && s.key == lbn {
			c.stats.Hits++
			return s.value, true
		}
	}
	c.stats.Misses++
	return 0, false
}

// Insert caches lbn -> pbn. When every probe slot holds another key, the first probe slot is
// overwritten and the remaining probe slots are cleared.
func (c *Cache) Insert(lbn, pbn uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Inserts++

	free := -1
	for i := 0; i < c.probes; i++ {
		idx := c.index(lbn, i)
		s := &c.slots[idx]
		if s.used && s.key == lbn {
			s.value = pbn
			return
		}
		if !s.used && free < 0 {
			free = int(idx)
		}
	}
	if free >= 0 {
		c.slots[free] = slot{key: lbn, value: pbn, used: true}
		c.entries++
		return
	}

	first := c.index(lbn, 0)
	c.slots[first] = slot{key: lbn, value: pbn, used: true}
	c.stats.Evictions++
	for i := 1; i < c.probes; i++ {
		s := &c.slots[c.index(lbn, i)]
		if s.used && s.key != lbn {
			*s = slot{}
			c.entries--
			c.stats.Evictions++
		}
	}
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stats
	st.Slots = len(c.slots)
	st.Entries = c.entries
	return st
}
