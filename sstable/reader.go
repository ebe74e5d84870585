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
	"io"

	"github.com/cockroachdb/errors"
	"github.com/shaledb/shale/internal/base"
	"github.com/shaledb/shale/internal/cache/lrucache"
	"github.com/shaledb/shale/internal/compress"
	"github.com/shaledb/shale/internal/crc"
	"github.com/shaledb/shale/internal/rawalloc"
)

// Reader reads an immutable table. Safe for concurrent use by multiple
// goroutines once constructed; each iterator must be confined to one
// goroutine.
type Reader struct {
	file            ReadableFile
	cache           *lrucache.LruCache
	cacheID         uint64
	cmp             base.Compare
	filter          filterReader
	verifyChecksums bool
	logger          base.Logger
	err             error
	// index holds the table's index block for the Reader's lifetime. One
	// entry per data block: a separator key >= every key in the block,
	// mapped to the block's handle.
	index block
}

// NewReader opens the table held in f. Closing the reader closes the file.
func NewReader(f ReadableFile, o ReaderOptions) (*Reader, error) {
	o = o.EnsureDefaults()
	r := &Reader{
		file:            f,
		cache:           o.Cache,
		cmp:             o.Comparer.Compare,
		verifyChecksums: o.VerifyChecksums,
		logger:          o.Logger,
	}
	if r.cache != nil {
		r.cacheID = r.cache.NewID()
	}
	if f == nil {
		r.err = errors.New("shale/sstable: nil file")
		return nil, r.Close()
	}

	foot, err := readFooter(f)
	if err != nil {
		r.err = err
		return nil, r.Close()
	}

	r.index, err = r.readRawBlock(foot.indexBH)
	if err != nil {
		r.err = err
		return nil, r.Close()
	}

	if o.FilterPolicy != nil {
		if err := r.readFilter(foot.metaindexBH, o.FilterPolicy); err != nil {
			r.err = err
			return nil, r.Close()
		}
	}
	return r, nil
}

// readFilter locates the filter block through the meta-index and loads it.
// A table written without a filter, or with a different policy, leaves the
// reader's filter invalid, which reads as may-match.
func (r *Reader) readFilter(metaindexBH BlockHandle, policy base.FilterPolicy) error {
	meta, err := r.readRawBlock(metaindexBH)
	if err != nil {
		return err
	}
	i, err := newBlockIter(r.cmp, meta)
	if err != nil {
		return err
	}
	name := []byte(metaFilterPrefix + policy.Name())
	if k, v := i.SeekGE(name); k != nil && string(k) == string(name) {
		bh, n := decodeBlockHandle(v)
		if n == 0 {
			return base.CorruptionErrorf("shale/table: invalid table (bad filter block handle)")
		}
		fb, err := r.readRawBlock(bh)
		if err != nil {
			return err
		}
		r.filter = newFilterReader(policy, fb)
	}
	return i.Close()
}

// cacheKey builds the cache key for the block at offset: the reader's cache
// partition id followed by the block offset, both fixed64.
func (r *Reader) cacheKey(offset uint64) []byte {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], r.cacheID)
	binary.LittleEndian.PutUint64(buf[8:], offset)
	return buf[:]
}

// readBlock returns the block at bh, consulting the cache first. When the
// returned handle is valid it pins the block in the cache; the caller must
// release it when done with the block, typically by attaching it to an
// iterator.
func (r *Reader) readBlock(bh BlockHandle) (block, lrucache.Handle, error) {
	if r.cache == nil {
		b, err := r.readRawBlock(bh)
		return b, lrucache.Handle{}, err
	}

	key := r.cacheKey(bh.Offset)
	if h := r.cache.Lookup(key); h.Valid() {
		return h.Value().(block), h, nil
	}

	b, err := r.readRawBlock(bh)
	if err != nil {
		return nil, lrucache.Handle{}, err
	}
	h := r.cache.Insert(key, b, int64(len(b)), nil)
	return b, h, nil
}

// readRawBlock reads the block at bh from the file, verifies its trailer and
// undoes any compression.
func (r *Reader) readRawBlock(bh BlockHandle) (block, error) {
	b := rawalloc.New(int(bh.Length+blockTrailerLen), int(bh.Length+blockTrailerLen))
	n, err := r.file.ReadAt(b, int64(bh.Offset))
	if err != nil && err != io.EOF {
		return nil, err
	}
	if n < len(b) {
		return nil, base.CorruptionErrorf("shale/table: truncated block read at offset %d", base.Safe(bh.Offset))
	}

	if r.verifyChecksums {
		stored := binary.LittleEndian.Uint32(b[bh.Length+1:])
		computed := crc.New(b[:bh.Length+1]).Value()
		if crc.Unmask(stored) != crc.Unmask(computed) {
			return nil, base.CorruptionErrorf("shale/table: block checksum mismatch at offset %d", base.Safe(bh.Offset))
		}
	}

	switch b[bh.Length] {
	case noCompressionBlockType:
		return b[:bh.Length:bh.Length], nil
	case snappyCompressionBlockType:
		decoded, err := compress.SnappyCompressor.Decode(nil, b[:bh.Length])
		if err != nil {
			return nil, base.CorruptionErrorf("shale/table: corrupted compressed block contents: %v", err)
		}
		return decoded, nil
	default:
		return nil, base.CorruptionErrorf("shale/table: bad block type: %d", b[bh.Length])
	}
}

// Get returns the value for key. The returned slice borrows from the block's
// buffer; call the returned closer when done with it. Returns
// base.ErrNotFound if the table does not contain the key.
func (r *Reader) Get(key []byte) ([]byte, func(), error) {
	if r.err != nil {
		return nil, nil, r.err
	}

	index, err := newBlockIter(r.cmp, r.index)
	if err != nil {
		return nil, nil, err
	}
	ik, iv := index.SeekGE(key)
	if ik == nil {
		return nil, nil, base.ErrNotFound
	}
	bh, n := decodeBlockHandle(iv)
	if n == 0 {
		return nil, nil, base.CorruptionErrorf("shale/table: invalid table (bad data block handle)")
	}

	if r.filter.valid() && !r.filter.mayContain(bh.Offset, key) {
		return nil, nil, base.ErrNotFound
	}

	b, h, err := r.readBlock(bh)
	if err != nil {
		return nil, nil, err
	}
	data, err := newBlockIter(r.cmp, b)
	if err != nil {
		h.Release()
		return nil, nil, err
	}
	if k, v := data.SeekGE(key); k != nil && r.cmp(k, key) == 0 {
		return v, func() { h.Release() }, nil
	}
	if err := data.Error(); err != nil {
		h.Release()
		return nil, nil, err
	}
	h.Release()
	return nil, nil, base.ErrNotFound
}

// NewIter returns an iterator over all entries of the table.
func (r *Reader) NewIter() (*Iter, error) {
	if r.err != nil {
		return nil, r.err
	}
	i := &Iter{r: r}
	if err := i.index.init(r.cmp, r.index); err != nil {
		return nil, err
	}
	return i, nil
}

// Close releases the reader's resources.
func (r *Reader) Close() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			if r.err == nil {
				r.err = err
			}
			return err
		}
		r.file = nil
	}
	if r.err != nil {
		return r.err
	}
	// Make future calls error.
	r.err = errors.New("shale/sstable: reader is closed")
	return nil
}

// Iter is a two-level iterator: an index block iterator positioning a data
// block iterator. A data block stays pinned in the cache from when the
// iterator loads it until the iterator loads another block or is closed,
// including after the iterator has run off its end. Not safe for concurrent
// use.
type Iter struct {
	r     *Reader
	index blockIter
	data  blockIter
	err   error
}

// loadBlock loads the data block the index iterator is positioned on,
// releasing the previous block's pin.
func (i *Iter) loadBlock() bool {
	if !i.index.Valid() {
		i.data.offset = -1
		i.data.restarts = 0
		return false
	}
	bh, n := decodeBlockHandle(i.index.Value())
	if n == 0 {
		i.err = base.CorruptionErrorf("shale/table: invalid table (bad data block handle)")
		return false
	}
	b, h, err := i.r.readBlock(bh)
	if err != nil {
		i.err = err
		return false
	}
	i.data.Close()
	if err := i.data.init(i.r.cmp, b); err != nil {
		i.err = err
		return false
	}
	i.data.cacheHandle = h
	return true
}

// SeekGE positions the iterator on the first entry with a key >= key.
func (i *Iter) SeekGE(key []byte) ([]byte, []byte) {
	if i.err != nil {
		return nil, nil
	}
	if k, _ := i.index.SeekGE(key); k == nil {
		i.data.offset = -1
		i.data.restarts = 0
		return nil, nil
	}
	if !i.loadBlock() {
		return nil, nil
	}
	if k, v := i.data.SeekGE(key); k != nil {
		return k, v
	}
	// The separator admits keys beyond the block's largest; step to the
	// next block.
	return i.nextBlock()
}

// SeekLT positions the iterator on the last entry with a key < key.
func (i *Iter) SeekLT(key []byte) ([]byte, []byte) {
	if i.err != nil {
		return nil, nil
	}
	if k, _ := i.index.SeekGE(key); k == nil {
		i.index.Last()
	}
	if !i.index.Valid() {
		return nil, nil
	}
	if !i.loadBlock() {
		return nil, nil
	}
	if k, v := i.data.SeekLT(key); k != nil {
		return k, v
	}
	return i.prevBlock()
}

// First positions the iterator on the first entry of the table.
func (i *Iter) First() ([]byte, []byte) {
	if i.err != nil {
		return nil, nil
	}
	if k, _ := i.index.First(); k == nil {
		return nil, nil
	}
	if !i.loadBlock() {
		return nil, nil
	}
	return i.data.First()
}

// Last positions the iterator on the last entry of the table.
func (i *Iter) Last() ([]byte, []byte) {
	if i.err != nil {
		return nil, nil
	}
	if k, _ := i.index.Last(); k == nil {
		return nil, nil
	}
	if !i.loadBlock() {
		return nil, nil
	}
	return i.data.Last()
}

// Next moves the iterator to the next entry.
func (i *Iter) Next() ([]byte, []byte) {
	if i.err != nil {
		return nil, nil
	}
	if k, v := i.data.Next(); k != nil {
		return k, v
	}
	if err := i.data.Error(); err != nil {
		i.err = err
		return nil, nil
	}
	return i.nextBlock()
}

// Prev moves the iterator to the previous entry.
func (i *Iter) Prev() ([]byte, []byte) {
	if i.err != nil {
		return nil, nil
	}
	if k, v := i.data.Prev(); k != nil {
		return k, v
	}
	if err := i.data.Error(); err != nil {
		i.err = err
		return nil, nil
	}
	return i.prevBlock()
}

func (i *Iter) nextBlock() ([]byte, []byte) {
	for {
		if k, _ := i.index.Next(); k == nil {
			return nil, nil
		}
		if !i.loadBlock() {
			return nil, nil
		}
		if k, v := i.data.First(); k != nil {
			return k, v
		}
	}
}

func (i *Iter) prevBlock() ([]byte, []byte) {
	for {
		if k, _ := i.index.Prev(); k == nil {
			return nil, nil
		}
		if !i.loadBlock() {
			return nil, nil
		}
		if k, v := i.data.Last(); k != nil {
			return k, v
		}
	}
}

// Key returns the key at the current position.
func (i *Iter) Key() []byte {
	return i.data.Key()
}

// Value returns the value at the current position.
func (i *Iter) Value() []byte {
	return i.data.Value()
}

// Valid reports whether the iterator is positioned on an entry.
func (i *Iter) Valid() bool {
	return i.err == nil && i.data.Valid()
}

// Error returns any error the iterator encountered.
func (i *Iter) Error() error {
	if i.err != nil {
		return i.err
	}
	if err := i.index.Error(); err != nil {
		return err
	}
	return i.data.Error()
}

// Close releases the iterator's block pin.
func (i *Iter) Close() error {
	if err := i.data.Close(); err != nil && i.err == nil {
		i.err = err
	}
	return i.err
}
