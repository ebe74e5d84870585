// Copyright 2024 The Shale author and other contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lrucache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/shaledb/shale/internal/base"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestCache(size int64) *LruCache {
	return New(&base.CacheOptions{
		Size:     size,
		Shards:   1,
		HashSize: 16,
	})
}

func TestCacheInsertLookup(t *testing.T) {
	c := newTestCache(100)
	defer c.Close()

	h := c.Insert([]byte("a"), "va", 1, nil)
	require.True(t, h.Valid())
	require.Equal(t, "va", h.Value())
	h.Release()

	g := c.Lookup([]byte("a"))
	require.True(t, g.Valid())
	require.Equal(t, "va", g.Value())
	g.Release()

	// Releasing a handle does not invalidate subsequent lookups.
	g = c.Lookup([]byte("a"))
	require.True(t, g.Valid())
	g.Release()

	require.False(t, c.Lookup([]byte("b")).Valid())
}

func TestCacheEviction(t *testing.T) {
	c := newTestCache(10)
	defer c.Close()

	for _, k := range []string{"A", "B", "C"} {
		c.Insert([]byte(k), k, 4, nil).Release()
	}

	// Inserting C pushed the total charge to 12 > 10, evicting the oldest.
	require.False(t, c.Lookup([]byte("A")).Valid())
	hb := c.Lookup([]byte("B"))
	require.True(t, hb.Valid())
	hb.Release()
	hc := c.Lookup([]byte("C"))
	require.True(t, hc.Valid())
	hc.Release()
	require.Equal(t, int64(8), c.Size())
}

func TestCacheLRUOrder(t *testing.T) {
	c := newTestCache(10)
	defer c.Close()

	c.Insert([]byte("A"), "A", 4, nil).Release()
	c.Insert([]byte("B"), "B", 4, nil).Release()

	// Touch A so that B becomes the eviction candidate.
	c.Lookup([]byte("A")).Release()
	c.Insert([]byte("C"), "C", 4, nil).Release()

	ha := c.Lookup([]byte("A"))
	require.True(t, ha.Valid())
	ha.Release()
	require.False(t, c.Lookup([]byte("B")).Valid())
}

func TestCachePinnedEntrySurvivesEviction(t *testing.T) {
	deleted := make(map[string]bool)
	deleter := func(key []byte, value interface{}) {
		deleted[string(key)] = true
	}

	c := newTestCache(10)
	defer c.Close()

	pinned := c.Insert([]byte("A"), "va", 8, deleter)
	// Push A out of the cache while it is externally referenced.
	c.Insert([]byte("B"), "vb", 8, deleter).Release()

	require.False(t, c.Lookup([]byte("A")).Valid())
	require.False(t, deleted["A"])
	require.Equal(t, "va", pinned.Value())

	pinned.Release()
	require.True(t, deleted["A"])
}

func TestCacheInsertSameKey(t *testing.T) {
	var deletions []string
	deleter := func(key []byte, value interface{}) {
		deletions = append(deletions, fmt.Sprint(value))
	}

	c := newTestCache(100)
	defer c.Close()

	c.Insert([]byte("a"), "v1", 1, deleter).Release()
	c.Insert([]byte("a"), "v2", 1, deleter).Release()

	h := c.Lookup([]byte("a"))
	require.Equal(t, "v2", h.Value())
	h.Release()
	require.Equal(t, []string{"v1"}, deletions)
	require.Equal(t, int64(1), c.Size())
}

func TestCacheErase(t *testing.T) {
	deleted := false
	c := newTestCache(100)
	defer c.Close()

	c.Insert([]byte("a"), "va", 1, func([]byte, interface{}) { deleted = true }).Release()
	c.Erase([]byte("a"))
	require.False(t, c.Lookup([]byte("a")).Valid())
	require.True(t, deleted)
	require.Equal(t, int64(0), c.Size())

	// Erasing an absent key is a no-op.
	c.Erase([]byte("a"))
}

func TestCacheNewID(t *testing.T) {
	c := newTestCache(100)
	defer c.Close()

	var mu sync.Mutex
	seen := make(map[uint64]bool)
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 1000; j++ {
				id := c.NewID()
				mu.Lock()
				if seen[id] {
					mu.Unlock()
					return fmt.Errorf("duplicate id %d", id)
				}
				seen[id] = true
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestCacheMetrics(t *testing.T) {
	c := newTestCache(100)
	defer c.Close()

	c.Insert([]byte("a"), "va", 10, nil).Release()
	c.Lookup([]byte("a")).Release()
	c.Lookup([]byte("missing"))

	m := c.Metrics()
	require.Equal(t, int64(10), m.Size)
	require.Equal(t, int64(1), m.Count)
	require.Equal(t, int64(1), m.Hits)
	require.Equal(t, int64(1), m.Misses)
}

func TestCacheConcurrent(t *testing.T) {
	c := New(&base.CacheOptions{Size: 1 << 16, Shards: 16, HashSize: 256})
	defer c.Close()

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		i := i
		g.Go(func() error {
			for j := 0; j < 2000; j++ {
				key := []byte(fmt.Sprintf("key-%d-%d", i, j%64))
				if h := c.Lookup(key); h.Valid() {
					h.Release()
					continue
				}
				c.Insert(key, j, 32, nil).Release()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
