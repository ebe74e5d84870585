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

package sstable

import (
	"encoding/binary"
	"unsafe"

	"github.com/shaledb/shale/internal/base"
	"github.com/shaledb/shale/internal/cache/lrucache"
)

// block is the built form of a table block: entries of the form
//
//	varint shared | varint unshared | varint value_len | key_tail | value
//
// followed by an array of restart offsets as fixed32 LE and the restart
// count as fixed32 LE. Entries at restart points carry the full key
// (shared == 0).
type block []byte

func getBytes(ptr unsafe.Pointer, length int) []byte {
	return (*[0x7fffffff]byte)(ptr)[:length:length]
}

// decodeVarint32 decodes the varint at ptr, returning the value and the
// pointer just past it. The caller guarantees the block's restart trailer
// bounds any well-formed entry, so no length check is performed here.
func decodeVarint32(ptr unsafe.Pointer) (uint32, unsafe.Pointer) {
	if a := *((*uint8)(ptr)); a < 128 {
		return uint32(a), unsafe.Pointer(uintptr(ptr) + 1)
	} else if a, b := a&0x7f, *((*uint8)(unsafe.Pointer(uintptr(ptr) + 1))); b < 128 {
		return uint32(b)<<7 | uint32(a), unsafe.Pointer(uintptr(ptr) + 2)
	} else if b, c := b&0x7f, *((*uint8)(unsafe.Pointer(uintptr(ptr) + 2))); c < 128 {
		return uint32(c)<<14 | uint32(b)<<7 | uint32(a), unsafe.Pointer(uintptr(ptr) + 3)
	} else if c, d := c&0x7f, *((*uint8)(unsafe.Pointer(uintptr(ptr) + 3))); d < 128 {
		return uint32(d)<<21 | uint32(c)<<14 | uint32(b)<<7 | uint32(a), unsafe.Pointer(uintptr(ptr) + 4)
	} else {
		d, e := d&0x7f, *((*uint8)(unsafe.Pointer(uintptr(ptr) + 4)))
		return uint32(e)<<28 | uint32(d)<<21 | uint32(c)<<14 | uint32(b)<<7 | uint32(a), unsafe.Pointer(uintptr(ptr) + 5)
	}
}

type blockEntry struct {
	offset   int32
	keyStart int32
	keyEnd   int32
	valStart int32
	valSize  int32
}

// blockIter iterates over the entries of a single block in key order. The
// returned key and value slices borrow from the block's buffer; the block
// must outlive them. Not safe for concurrent use.
type blockIter struct {
	cmp         base.Compare
	offset      int32
	nextOffset  int32
	restarts    int32
	numRestarts int32
	ptr         unsafe.Pointer
	data        []byte
	key         []byte
	fullKey     []byte
	val         []byte
	err         error
	// cached holds entries between the nearest earlier restart point and
	// the current position, allowing Prev to step backwards without
	// re-decoding from the restart.
	cached      []blockEntry
	cachedBuf   []byte
	cacheHandle lrucache.Handle
}

func newBlockIter(cmp base.Compare, b block) (*blockIter, error) {
	i := &blockIter{}
	return i, i.init(cmp, b)
}

func (i *blockIter) init(cmp base.Compare, b block) error {
	if len(b) < 4 {
		return base.CorruptionErrorf("shale/table: invalid block (block is too short): %d", len(b))
	}
	numRestarts := int32(binary.LittleEndian.Uint32(b[len(b)-4:]))
	if numRestarts == 0 {
		return base.CorruptionErrorf("shale/table: invalid block (no restart points)")
	}
	if 4*(1+numRestarts) > int32(len(b)) {
		return base.CorruptionErrorf("shale/table: invalid block (restart array overruns block)")
	}
	i.cmp = cmp
	i.restarts = int32(len(b)) - 4*(1+numRestarts)
	i.numRestarts = numRestarts
	i.ptr = unsafe.Pointer(&b[0])
	i.data = b
	i.fullKey = i.fullKey[:0]
	i.val = nil
	i.err = nil
	i.clearCache()
	return nil
}

func (i *blockIter) clearCache() {
	i.cached = i.cached[:0]
	i.cachedBuf = i.cachedBuf[:0]
}

// readEntry decodes the entry at i.offset, setting i.key, i.val and
// i.nextOffset. The key is reconstructed from the previous entry's prefix
// when the stored shared length is non-zero.
func (i *blockIter) readEntry() {
	ptr := unsafe.Pointer(uintptr(i.ptr) + uintptr(i.offset))

	var shared, unshared, value uint32
	shared, ptr = decodeVarint32(ptr)
	unshared, ptr = decodeVarint32(ptr)
	value, ptr = decodeVarint32(ptr)

	unsharedKey := getBytes(ptr, int(unshared))
	i.fullKey = append(i.fullKey[:shared], unsharedKey...)
	if shared == 0 {
		// Provide stability for the key across positioning calls if the key
		// doesn't share a prefix with the previous key. This removes
		// requiring the key to be copied if the caller knows the block has a
		// restart interval of 1.
		i.key = unsharedKey
	} else {
		i.key = i.fullKey
	}
	ptr = unsafe.Pointer(uintptr(ptr) + uintptr(unshared))
	i.val = getBytes(ptr, int(value))
	i.nextOffset = int32(uintptr(ptr)-uintptr(i.ptr)) + int32(value)

	if i.nextOffset > i.restarts {
		i.err = base.CorruptionErrorf("shale/table: invalid block (entry overruns restart array)")
		i.offset = -1
		i.nextOffset = 0
	}
}

// restartKey returns the full key stored at a restart offset.
func (i *blockIter) restartKey(offset int32) []byte {
	// The entry at a restart point has shared == 0, a single varint byte.
	ptr := unsafe.Pointer(uintptr(i.ptr) + uintptr(offset+1))
	var unshared uint32
	unshared, ptr = decodeVarint32(ptr)
	_, ptr = decodeVarint32(ptr)
	return getBytes(ptr, int(unshared))
}

func (i *blockIter) cacheEntry() {
	var valStart int32
	valSize := int32(len(i.val))
	if valSize > 0 {
		valStart = int32(uintptr(unsafe.Pointer(&i.val[0])) - uintptr(i.ptr))
	}

	i.cached = append(i.cached, blockEntry{
		offset:   i.offset,
		keyStart: int32(len(i.cachedBuf)),
		keyEnd:   int32(len(i.cachedBuf) + len(i.key)),
		valStart: valStart,
		valSize:  valSize,
	})
	i.cachedBuf = append(i.cachedBuf, i.key...)
}

// SeekGE positions the iterator on the first entry with a key >= key,
// returning that key and value, or nils if no such entry exists.
func (i *blockIter) SeekGE(key []byte) ([]byte, []byte) {
	if i.err != nil {
		return nil, nil
	}
	i.clearCache()
	i.offset = 0
	if i.restarts == 0 {
		// Empty block.
		i.nextOffset = 0
		return nil, nil
	}

	// Binary search over the restart points. Each probe decodes only the
	// full key stored at the restart.
	var index int32
	{
		upper := i.numRestarts
		for index < upper {
			h := int32(uint(index+upper) >> 1)
			offset := int32(binary.LittleEndian.Uint32(i.data[i.restarts+4*h:]))
			if i.cmp(i.restartKey(offset), key) <= 0 {
				index = h + 1
			} else {
				upper = h
			}
		}
	}

	// index is now the smallest restart whose key is > key. Scan forward
	// from the previous restart.
	if index > 0 {
		i.offset = int32(binary.LittleEndian.Uint32(i.data[i.restarts+4*(index-1):]))
	}
	if !i.Valid() {
		return nil, nil
	}
	i.readEntry()

	for i.Valid() {
		if i.cmp(i.key, key) >= 0 {
			return i.key, i.val
		}
		i.Next()
	}
	return nil, nil
}

// SeekLT positions the iterator on the last entry with a key < key.
func (i *blockIter) SeekLT(key []byte) ([]byte, []byte) {
	if i.err != nil {
		return nil, nil
	}
	i.clearCache()
	i.offset = 0
	if i.restarts == 0 {
		i.nextOffset = 0
		return nil, nil
	}

	var index int32
	{
		upper := i.numRestarts
		for index < upper {
			h := int32(uint(index+upper) >> 1)
			offset := int32(binary.LittleEndian.Uint32(i.data[i.restarts+4*h:]))
			if i.cmp(i.restartKey(offset), key) < 0 {
				index = h + 1
			} else {
				upper = h
			}
		}
	}

	// index is the smallest restart whose key is >= key. All entries at or
	// beyond it are too large; scan from the previous restart caching
	// entries so the final Prev is cheap.
	if index == 0 {
		i.offset = -1
		i.nextOffset = 0
		return nil, nil
	}

	targetOffset := i.restarts
	i.offset = int32(binary.LittleEndian.Uint32(i.data[i.restarts+4*(index-1):]))
	if index < i.numRestarts {
		targetOffset = int32(binary.LittleEndian.Uint32(i.data[i.restarts+4*index:]))
	}

	i.nextOffset = i.offset
	for {
		i.offset = i.nextOffset
		i.readEntry()
		if i.err != nil {
			return nil, nil
		}

		if i.cmp(i.key, key) >= 0 {
			return i.Prev()
		}

		if i.nextOffset >= targetOffset {
			break
		}
		i.cacheEntry()
	}

	if !i.Valid() {
		return nil, nil
	}
	return i.key, i.val
}

// First positions the iterator on the first entry.
func (i *blockIter) First() ([]byte, []byte) {
	if i.err != nil {
		return nil, nil
	}
	i.offset = 0
	if !i.Valid() {
		return nil, nil
	}
	i.clearCache()
	i.readEntry()
	if i.err != nil {
		return nil, nil
	}
	return i.key, i.val
}

// Last positions the iterator on the last entry.
func (i *blockIter) Last() ([]byte, []byte) {
	if i.err != nil {
		return nil, nil
	}
	i.offset = int32(binary.LittleEndian.Uint32(i.data[i.restarts+4*(i.numRestarts-1):]))
	if !i.Valid() {
		return nil, nil
	}

	i.readEntry()
	i.clearCache()

	for i.nextOffset < i.restarts {
		i.cacheEntry()
		i.offset = i.nextOffset
		i.readEntry()
	}
	if i.err != nil {
		return nil, nil
	}
	return i.key, i.val
}

// Next moves the iterator to the next entry.
func (i *blockIter) Next() ([]byte, []byte) {
	if i.err != nil {
		return nil, nil
	}
	if len(i.cachedBuf) > 0 {
		// The key reconstruction buffer may point into cachedBuf after a
		// Prev; re-anchor it before discarding the cache.
		i.fullKey = append(i.fullKey[:0], i.key...)
		i.clearCache()
	}

	i.offset = i.nextOffset
	if !i.Valid() {
		return nil, nil
	}
	i.readEntry()
	if i.err != nil {
		return nil, nil
	}
	return i.key, i.val
}

// Prev moves the iterator to the previous entry.
func (i *blockIter) Prev() ([]byte, []byte) {
	if i.err != nil {
		return nil, nil
	}
	if n := len(i.cached) - 1; n >= 0 {
		i.nextOffset = i.offset
		e := &i.cached[n]
		i.offset = e.offset
		i.val = getBytes(unsafe.Pointer(uintptr(i.ptr)+uintptr(e.valStart)), int(e.valSize))
		i.key = i.cachedBuf[e.keyStart:e.keyEnd]
		i.cached = i.cached[:n]
		return i.key, i.val
	}

	i.clearCache()
	if i.offset <= 0 {
		i.offset = -1
		i.nextOffset = 0
		return nil, nil
	}

	// Find the restart preceding the current position and scan forward from
	// it, caching entries along the way.
	targetOffset := i.offset
	var index int32
	{
		upper := i.numRestarts
		for index < upper {
			h := int32(uint(index+upper) >> 1)
			offset := int32(binary.LittleEndian.Uint32(i.data[i.restarts+4*h:]))
			if offset < targetOffset {
				index = h + 1
			} else {
				upper = h
			}
		}
	}

	i.offset = 0
	if index > 0 {
		i.offset = int32(binary.LittleEndian.Uint32(i.data[i.restarts+4*(index-1):]))
	}

	i.readEntry()

	for i.nextOffset < targetOffset {
		i.cacheEntry()
		i.offset = i.nextOffset
		i.readEntry()
	}
	if i.err != nil {
		return nil, nil
	}
	return i.key, i.val
}

// Key returns the key at the current position. The slice borrows from the
// block.
func (i *blockIter) Key() []byte {
	return i.key
}

// Value returns the value at the current position. The slice borrows from
// the block.
func (i *blockIter) Value() []byte {
	return i.val
}

// Valid reports whether the iterator is positioned on an entry.
func (i *blockIter) Valid() bool {
	return i.offset >= 0 && i.offset < i.restarts
}

// Error returns any corruption error the iterator encountered.
func (i *blockIter) Error() error {
	return i.err
}

// Close releases the pinned cache handle backing the block, if any.
func (i *blockIter) Close() error {
	i.cacheHandle.Release()
	i.cacheHandle = lrucache.Handle{}
	i.val = nil
	return i.err
}

// blockWriter builds a prefix-compressed block. Keys must be added in
// strictly increasing order.
type blockWriter struct {
	cmp             base.Compare
	restartInterval int
	nEntries        int
	nextRestart     int
	buf             []byte
	restarts        []uint32
	curKey          []byte
	prevKey         []byte
	curValue        []byte
	tmp             [4]byte
}

func (w *blockWriter) store(keySize int, value []byte) {
	shared := 0
	if w.nEntries == w.nextRestart {
		w.nextRestart = w.nEntries + w.restartInterval
		w.restarts = append(w.restarts, uint32(len(w.buf)))
	} else {
		shared = base.SharedPrefixLen(w.curKey, w.prevKey)
	}

	needed := 3*binary.MaxVarintLen32 + len(w.curKey[shared:]) + len(value)
	n := len(w.buf)
	if cap(w.buf) < n+needed {
		newCap := 2 * cap(w.buf)
		if newCap == 0 {
			newCap = 1024
		}
		for newCap < n+needed {
			newCap *= 2
		}
		newBuf := make([]byte, n, newCap)
		copy(newBuf, w.buf)
		w.buf = newBuf
	}
	w.buf = w.buf[:n+needed]

	{
		x := uint32(shared)
		for x >= 0x80 {
			w.buf[n] = byte(x) | 0x80
			x >>= 7
			n++
		}
		w.buf[n] = byte(x)
		n++
	}

	{
		x := uint32(keySize - shared)
		for x >= 0x80 {
			w.buf[n] = byte(x) | 0x80
			x >>= 7
			n++
		}
		w.buf[n] = byte(x)
		n++
	}

	{
		x := uint32(len(value))
		for x >= 0x80 {
			w.buf[n] = byte(x) | 0x80
			x >>= 7
			n++
		}
		w.buf[n] = byte(x)
		n++
	}

	n += copy(w.buf[n:], w.curKey[shared:])
	n += copy(w.buf[n:], value)
	w.buf = w.buf[:n]

	w.curValue = w.buf[n-len(value):]

	w.nEntries++
}

func (w *blockWriter) add(key, value []byte) {
	if w.nEntries > 0 && w.cmp != nil && w.cmp(key, w.curKey) <= 0 {
		panic("shale/sstable: keys must be added in strictly increasing order")
	}

	w.curKey, w.prevKey = w.prevKey, w.curKey

	size := len(key)
	if cap(w.curKey) < size {
		w.curKey = make([]byte, 0, size*2)
	}
	w.curKey = w.curKey[:size]
	copy(w.curKey, key)

	w.store(size, value)
}

func (w *blockWriter) finish() []byte {
	// Every block must have at least one restart point.
	if w.nEntries == 0 {
		if cap(w.restarts) > 0 {
			w.restarts = w.restarts[:1]
			w.restarts[0] = 0
		} else {
			w.restarts = append(w.restarts, 0)
		}
	}
	tmp4 := w.tmp[:4]
	for _, x := range w.restarts {
		binary.LittleEndian.PutUint32(tmp4, x)
		w.buf = append(w.buf, tmp4...)
	}
	binary.LittleEndian.PutUint32(tmp4, uint32(len(w.restarts)))
	w.buf = append(w.buf, tmp4...)
	result := w.buf

	// Reset the block state.
	w.nEntries = 0
	w.nextRestart = 0
	w.buf = w.buf[:0]
	w.restarts = w.restarts[:0]
	w.prevKey = w.prevKey[:0]
	w.curKey = w.curKey[:0]
	return result
}

func (w *blockWriter) reset() {
	w.nEntries = 0
	w.nextRestart = 0
	w.buf = w.buf[:0]
	w.restarts = w.restarts[:0]
	w.prevKey = w.prevKey[:0]
	w.curKey = w.curKey[:0]
	w.curValue = nil
}

func (w *blockWriter) estimatedSize() int {
	return len(w.buf) + 4*(len(w.restarts)+1)
}
