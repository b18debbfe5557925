package vat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// keysWithHome returns n keys whose first probe lands on slot home.
func keysWithHome(c *Cache, home uint32, n int) []uint32 {
	var keys []uint32
	for k := uint32(1); len(keys) < n; k++ {
		if c.index(k, 0) == home {
			keys = append(keys, k)
		}
	}
	return keys
}

func TestNewCacheRoundsCapacity(t *testing.T) {
	require.Len(t, NewCache(0, 0).slots, 8192)
	require.Equal(t, 8, NewCache(0, 0).probes)
	require.Len(t, NewCache(1000, 8).slots, 1024)
	require.Equal(t, 4, NewCache(3, 8).probes, "probes never exceed capacity")
}

func TestMixSpreadsSequentialKeys(t *testing.T) {
	c := NewCache(1024, 8)
	seen := make(map[uint32]bool)
	for k := uint32(0); k < 256; k++ {
		seen[c.index(k, 0)] = true
	}
	require.Greater(t, len(seen), 128)
}

func TestLookupInsert(t *testing.T) {
	c := NewCache(64, 8)

	_, ok := c.Lookup(10)
	require.False(t, ok)

	c.Insert(10, 5010)
	v, ok := c.Lookup(10)
	require.True(t, ok)
	require.Equal(t, uint32(5010), v)

	c.Insert(10, 6010)
	v, _ = c.Lookup(10)
	require.Equal(t, uint32(6010), v, "reinserting a key updates it in place")

	st := c.Stats()
	require.Equal(t, uint64(2), st.Hits)
	require.Equal(t, uint64(1), st.Misses)
	require.Equal(t, uint64(2), st.Inserts)
	require.Equal(t, 1, st.Entries)
	require.Equal(t, 64, st.Slots)
}

func TestEvictionIsLocal(t *testing.T) {
	c := NewCache(64, 8)

	// A key whose probe window (40..47) does not overlap slots 0..7.
	far := keysWithHome(c, 40, 1)[0]
	c.Insert(far, 1)

	colliding := keysWithHome(c, 0, 9)
	for i, k := range colliding[:8] {
		c.Insert(k, uint32(100+i))
	}
	for i, k := range colliding[:8] {
		v, ok := c.Lookup(k)
		require.True(t, ok)
		require.Equal(t, uint32(100+i), v)
	}

	// The ninth key finds every probe slot taken.
	c.Insert(colliding[8], 999)

	v, ok := c.Lookup(colliding[8])
	require.True(t, ok)
	require.Equal(t, uint32(999), v)
	for _, k := range colliding[:8] {
		_, ok := c.Lookup(k)
		require.False(t, ok, "key %d should have been evicted", k)
	}

	v, ok = c.Lookup(far)
	require.True(t, ok, "keys outside the colliding neighborhood survive")
	require.Equal(t, uint32(1), v)

	st := c.Stats()
	require.Equal(t, uint64(8), st.Evictions)
	require.Equal(t, 2, st.Entries)
}

func TestLookupScansPastEmptySlots(t *testing.T) {
	c := NewCache(64, 8)
	keys := keysWithHome(c, 8, 2)
	c.Insert(keys[0], 1)
	c.Insert(keys[1], 2)

	// Empty the first probe slot behind the second key's back.
	c.slots[c.index(keys[1], 0)] = slot{}

	v, ok := c.Lookup(keys[1])
	require.True(t, ok)
	require.Equal(t, uint32(2), v)
}

func TestConcurrentAccess(t *testing.T) {
	c := NewCache(128, 8)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := uint32(0); i < 1000; i++ {
				k := uint32(g)*1000 + i
				c.Insert(k, k+1)
				if v, ok := c.Lookup(k); ok && v != k+1 {
					t.Errorf("lookup %d = %d, want %d", k, v, k+1)
				}
			}
		}(g)
	}
	wg.Wait()

	st := c.Stats()
	require.Equal(t, uint64(8000), st.Inserts)
	require.Equal(t, uint64(8000), st.Hits+st.Misses)
	require.LessOrEqual(t, st.Entries, 128)
}
