package util

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c, err := NewLRU(LRUConfig[string, int]{
		Capacity: 2,
		OnEvict:  func(k string, _ int) { evicted = append(evicted, k) },
	})
	require.NoError(t, err)

	c.Put("a", 1, 1)
	c.Put("b", 2, 1)
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Put("c", 3, 1)

	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, c.Len())

	v, ok := c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestLRUWeightAndTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := NewLRU(LRUConfig[string, string]{
		MaxWeight: 10,
		TTL:       time.Minute,
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)

	c.Put("small", "x", 4)
	c.Put("medium", "y", 5)
	assert.Equal(t, 9, c.Weight())
	c.Put("big", "z", 6)
	assert.Equal(t, 6, c.Weight())
	for _, k := range []string{"small", "medium"} {
		_, ok := c.Get(k)
		assert.False(t, ok, k)
	}
	_, ok := c.Get("big")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("big")
	assert.False(t, ok, "expired entries are not returned")
}

func TestLRUDeleteAndPurge(t *testing.T) {
	_, err := NewLRU(LRUConfig[int, int]{})
	assert.ErrorIs(t, err, ErrNoLimit)

	c, err := NewLRU(LRUConfig[int, int]{Capacity: 10})
	require.NoError(t, err)
	c.Put(1, 1, 0)
	assert.True(t, c.Delete(1))
	assert.False(t, c.Delete(1))
	c.Put(2, 2, 1)
	c.Purge()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Weight())
}

func TestLRUConcurrentAccess(t *testing.T) {
	c, err := NewLRU(LRUConfig[string, int]{Capacity: 50})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%80)
				c.Put(key, i, 1)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
