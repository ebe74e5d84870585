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

// Package lrucache implements the shared block cache: a sharded hash table
// with per-shard LRU eviction and pinned-handle reference counting. An entry
// evicted while externally pinned stays alive until the last handle is
// released.
package lrucache

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/shaledb/shale/internal/base"
	"github.com/shaledb/shale/internal/consts"
	"github.com/shaledb/shale/internal/hash"
	"github.com/shaledb/shale/internal/invariants"
)

// Handle is an externally observable pointer to a cache entry. It must be
// released exactly once; failing to release leaks the entry, which is then
// never freed and whose deleter never runs.
type Handle struct {
	e     *entry
	shard *shard
}

// Valid reports whether the handle points at an entry.
func (h Handle) Valid() bool {
	return h.e != nil
}

// Value returns the value stored under the handle's entry.
func (h Handle) Value() interface{} {
	if h.e == nil {
		return nil
	}
	return h.e.value
}

// Release drops the handle's reference. The zero Handle is a no-op.
func (h Handle) Release() {
	if h.e != nil {
		h.shard.release(h.e)
	}
}

// LruCache is the sharded cache. The shard for a key is chosen by the high
// bits of the key's 32-bit hash so that the low bits remain well distributed
// for the shard's bucket index.
type LruCache struct {
	refs       int64
	maxSize    int64
	shards     []shard
	shardShift uint
	logger     base.Logger

	idMu    sync.Mutex
	idAlloc uint64
}

// New returns a cache with the given options, holding one reference owned by
// the caller.
func New(opts *base.CacheOptions) *LruCache {
	shardNum := opts.Shards
	if shardNum <= 0 {
		shardNum = consts.DefaultCacheShards
	}
	if shardNum&(shardNum-1) != 0 {
		panic(fmt.Sprintf("lrucache: shard count %d is not a power of two", shardNum))
	}
	size := opts.Size
	if size <= 0 {
		size = consts.DefaultCacheSize
	}
	hashSize := opts.HashSize
	if hashSize <= 0 {
		hashSize = consts.DefaultCacheHashSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = base.DefaultLogger
	}

	shift := uint(32)
	for n := shardNum; n > 1; n >>= 1 {
		shift--
	}

	c := &LruCache{
		refs:       1,
		maxSize:    size,
		shards:     make([]shard, shardNum),
		shardShift: shift,
		logger:     logger,
	}
	for i := range c.shards {
		c.shards[i].init(size/int64(shardNum), hashSize/shardNum)
	}

	invariants.SetFinalizer(c, func(obj interface{}) {
		c := obj.(*LruCache)
		if v := atomic.LoadInt64(&c.refs); v != 0 {
			c.logger.Errorf("lrucache: cache (%p) has non-zero reference count: %d", c, v)
			os.Exit(1)
		}
	})
	return c
}

func (c *LruCache) getShard(h uint32) *shard {
	return &c.shards[h>>c.shardShift]
}

// Insert adds a mapping from key to value with the given charge against the
// cache capacity. A previous entry for key, if any, loses the cache's
// reference. The returned handle pins the new entry and must be released.
func (c *LruCache) Insert(key []byte, value interface{}, charge int64, deleter Deleter) Handle {
	h := hash.Sum32(key)
	return c.getShard(h).Insert(key, h, value, charge, deleter)
}

// Lookup returns a handle to the entry for key, or an invalid handle on
// miss. A hit moves the entry to the newest end of its shard's LRU list.
func (c *LruCache) Lookup(key []byte) Handle {
	h := hash.Sum32(key)
	return c.getShard(h).Lookup(key, h)
}

// Erase removes the entry for key. The removal is observable by subsequent
// lookups immediately, though the entry's memory survives until all handles
// are released.
func (c *LruCache) Erase(key []byte) {
	h := hash.Sum32(key)
	c.getShard(h).Erase(key, h)
}

// NewID returns a token that is guaranteed to never be returned again. Used
// to partition the key space between cache clients sharing this cache.
func (c *LruCache) NewID() uint64 {
	c.idMu.Lock()
	c.idAlloc++
	id := c.idAlloc
	c.idMu.Unlock()
	return id
}

// Ref adds a reference to the cache itself.
func (c *LruCache) Ref() {
	v := atomic.AddInt64(&c.refs, 1)
	if v <= 1 {
		panic(fmt.Sprintf("lrucache: inconsistent reference count: %d", v))
	}
}

// Unref releases a reference, freeing all shards when the count reaches
// zero.
func (c *LruCache) Unref() {
	v := atomic.AddInt64(&c.refs, -1)
	switch {
	case v < 0:
		panic(fmt.Sprintf("lrucache: inconsistent reference count: %d", v))
	case v == 0:
		for i := range c.shards {
			c.shards[i].Free()
		}
	}
}

// Close releases the caller's reference.
func (c *LruCache) Close() {
	c.Unref()
}

// MaxSize returns the configured capacity.
func (c *LruCache) MaxSize() int64 {
	return c.maxSize
}

// Size returns the summed charge of resident entries.
func (c *LruCache) Size() int64 {
	var size int64
	for i := range c.shards {
		size += c.shards[i].Size()
	}
	return size
}

// Metrics holds counters aggregated over the shards.
type Metrics struct {
	Size   int64
	Count  int64
	Hits   int64
	Misses int64

	ShardsMetrics []ShardMetrics
}

// ShardMetrics holds per-shard counters.
type ShardMetrics struct {
	Size  int64
	Count int64
}

func (m Metrics) String() string {
	var shards bytes.Buffer
	for i := range m.ShardsMetrics {
		shards.WriteString(fmt.Sprintf("[%d:%d:%d]", i, m.ShardsMetrics[i].Size, m.ShardsMetrics[i].Count))
	}
	return fmt.Sprintf("size:%d count:%d hit:%d mis:%d shards:%s",
		m.Size, m.Count, m.Hits, m.Misses, shards.String())
}

// Metrics returns a snapshot of the cache counters.
func (c *LruCache) Metrics() Metrics {
	var m Metrics
	m.ShardsMetrics = make([]ShardMetrics, len(c.shards))
	for i := range c.shards {
		s := &c.shards[i]
		size := s.Size()
		count := int64(s.Count())
		m.ShardsMetrics[i] = ShardMetrics{Size: size, Count: count}
		m.Size += size
		m.Count += count
		m.Hits += atomic.LoadInt64(&s.hits)
		m.Misses += atomic.LoadInt64(&s.misses)
	}
	return m
}

// MetricsInfo formats the metrics snapshot for logging.
func (c *LruCache) MetricsInfo() string {
	return c.Metrics().String()
}
