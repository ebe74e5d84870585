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

import "fmt"

// Deleter is invoked when an entry's reference count drops to zero, with the
// key and value originally passed to Insert.
type Deleter func(key []byte, value interface{})

// entry is a cache element. Entries are kept in a circular doubly linked
// list ordered by access time, threaded through a sentinel per shard, and
// chained in the shard's hash table.
//
// The reference count has two conceptual owners: the cache itself and
// callers holding handles. Insert creates an entry with two references (one
// for the cache, one for the returned handle). Eviction and Erase drop the
// cache's reference only; the entry is freed when the count reaches zero.
type entry struct {
	key     []byte
	value   interface{}
	deleter Deleter
	charge  int64
	hash    uint32
	refs    int32

	// Chain pointer in the shard's hash table.
	nextHash *entry
	// LRU links. prev of the sentinel is the newest entry, next the oldest.
	next, prev *entry
}

func (e *entry) acquire() {
	e.refs++
	if e.refs <= 1 {
		panic(fmt.Sprintf("lrucache: inconsistent reference count: %d", e.refs))
	}
}

// release drops one reference and reports whether the entry is now dead.
func (e *entry) release() bool {
	e.refs--
	if e.refs < 0 {
		panic(fmt.Sprintf("lrucache: inconsistent reference count: %d", e.refs))
	}
	return e.refs == 0
}

func (e *entry) free() {
	if e.deleter != nil {
		e.deleter(e.key, e.value)
	}
	e.key = nil
	e.value = nil
	e.deleter = nil
}
