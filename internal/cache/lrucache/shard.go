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
	"sync/atomic"
)

// shard is a single sub-cache: a hash table and an LRU list under one mutex.
type shard struct {
	hits   int64
	misses int64

	mu       sync.Mutex
	capacity int64
	usage    int64
	table    handleTable
	// lru is the sentinel of the circular list. lru.prev is the newest
	// entry, lru.next the oldest.
	lru entry
}

func (s *shard) init(capacity int64, hashSize int) {
	s.capacity = capacity
	s.table.init(hashSize)
	s.lru.next = &s.lru
	s.lru.prev = &s.lru
}

func (s *shard) Lookup(key []byte, hash uint32) Handle {
	s.mu.Lock()
	e := s.table.Get(key, hash)
	if e == nil {
		s.mu.Unlock()
		atomic.AddInt64(&s.misses, 1)
		return Handle{}
	}
	e.acquire()
	s.lruRemove(e)
	s.lruAppend(e)
	s.mu.Unlock()
	atomic.AddInt64(&s.hits, 1)
	return Handle{e: e, shard: s}
}

func (s *shard) Insert(key []byte, hash uint32, value interface{}, charge int64, deleter Deleter) Handle {
	e := &entry{
		key:     append([]byte(nil), key...),
		value:   value,
		deleter: deleter,
		charge:  charge,
		hash:    hash,
		// One reference for the cache, one for the returned handle.
		refs: 2,
	}

	s.mu.Lock()
	s.lruAppend(e)
	s.usage += charge
	if old := s.table.Put(e); old != nil {
		s.removeEntry(old)
	}
	for s.usage > s.capacity && s.lru.next != &s.lru {
		oldest := s.lru.next
		s.table.Delete(oldest.key, oldest.hash)
		s.removeEntry(oldest)
	}
	s.checkConsistency()
	s.mu.Unlock()

	return Handle{e: e, shard: s}
}

func (s *shard) Erase(key []byte, hash uint32) {
	s.mu.Lock()
	if e := s.table.Delete(key, hash); e != nil {
		s.removeEntry(e)
	}
	s.mu.Unlock()
}

// removeEntry drops the cache's own reference to an entry that has already
// left the hash table. REQUIRES s.mu held.
func (s *shard) removeEntry(e *entry) {
	s.lruRemove(e)
	s.usage -= e.charge
	if e.release() {
		e.free()
	}
}

func (s *shard) release(e *entry) {
	s.mu.Lock()
	dead := e.release()
	s.mu.Unlock()
	if dead {
		e.free()
	}
}

func (s *shard) lruAppend(e *entry) {
	e.next = &s.lru
	e.prev = s.lru.prev
	e.prev.next = e
	e.next.prev = e
}

func (s *shard) lruRemove(e *entry) {
	e.next.prev = e.prev
	e.prev.next = e.next
	e.next = nil
	e.prev = nil
}

func (s *shard) checkConsistency() {
	if s.usage < 0 {
		panic(fmt.Sprintf("lrucache: negative usage %d", s.usage))
	}
}

func (s *shard) Size() int64 {
	s.mu.Lock()
	size := s.usage
	s.mu.Unlock()
	return size
}

func (s *shard) Count() int {
	s.mu.Lock()
	count := s.table.Count()
	s.mu.Unlock()
	return count
}

// Free drops every remaining cache reference. REQUIRES all handles have been
// released.
func (s *shard) Free() {
	s.mu.Lock()
	for s.lru.next != &s.lru {
		e := s.lru.next
		if e.refs != 1 {
			panic(fmt.Sprintf("lrucache: freeing shard with pinned entry: refs=%d", e.refs))
		}
		s.table.Delete(e.key, e.hash)
		s.removeEntry(e)
	}
	s.table.free()
	s.mu.Unlock()
}
