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
	"bufio"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/shaledb/shale/internal/base"
	"github.com/shaledb/shale/internal/compress"
	"github.com/shaledb/shale/internal/consts"
	"github.com/shaledb/shale/internal/crc"
	"github.com/shaledb/shale/internal/vfs"
)

// WriterMetadata holds info about a table just written.
type WriterMetadata struct {
	// Size is the total file size in bytes, including the footer.
	Size uint64
	// EntryCount is the number of keys added.
	EntryCount uint64
	// SmallestKey and LargestKey bound the keys in the table.
	SmallestKey []byte
	LargestKey  []byte
}

// Writer builds a table file from keys added in strictly increasing order.
// Not safe for concurrent use.
type Writer struct {
	file       vfs.File
	bw         *bufio.Writer
	cmp        base.Compare
	separator  base.Separator
	successor  base.Successor
	blockSize  int
	compressor compress.Compressor
	logger     base.Logger
	meta       WriterMetadata
	err        error

	// offset is the file offset where the next block will land.
	offset uint64
	block  blockWriter
	// indexBlock accumulates one entry per flushed data block: a shortened
	// separator key mapping to the block's handle.
	indexBlock blockWriter
	filter     *filterWriter
	filterName string
	// pendingBH is the handle of the last flushed data block, whose index
	// entry is deferred until the next key is known so the separator can be
	// shortened.
	pendingBH      BlockHandle
	pendingIndexEntry bool

	lastKey       []byte
	sepBuf        []byte
	compressedBuf []byte
	tmp           [footerLen]byte
}

// NewWriter returns a table writer over the given file. Closing the writer
// closes the file.
func NewWriter(f vfs.File, o WriterOptions) *Writer {
	o = o.EnsureDefaults()
	w := &Writer{
		file:      f,
		bw:        bufio.NewWriterSize(f, consts.BufioWriterBufSize),
		cmp:       o.Comparer.Compare,
		separator: o.Comparer.Separator,
		successor: o.Comparer.Successor,
		blockSize: o.BlockSize,
		logger:    o.Logger,
	}
	switch o.Compression {
	case SnappyCompression:
		w.compressor = compress.SnappyCompressor
	default:
		w.compressor = compress.NoCompressor
	}
	w.block.cmp = w.cmp
	w.block.restartInterval = o.BlockRestartInterval
	// Index keys are far apart; prefix compression buys little and restart
	// interval 1 keeps seeks cheap.
	w.indexBlock.cmp = w.cmp
	w.indexBlock.restartInterval = 1
	if o.FilterPolicy != nil {
		w.filter = newFilterWriter(o.FilterPolicy)
		w.filterName = o.FilterPolicy.Name()
	}
	return w
}

// Add adds a key-value pair to the table. Keys must be strictly increasing.
func (w *Writer) Add(key, value []byte) error {
	if w.err != nil {
		return w.err
	}
	if w.meta.EntryCount > 0 && w.cmp(key, w.lastKey) <= 0 {
		w.err = errors.Errorf("shale/sstable: Add called in non-increasing key order: %s, %s",
			base.FormatBytes(w.lastKey), base.FormatBytes(key))
		return w.err
	}

	if w.pendingIndexEntry {
		w.sepBuf = w.separator(w.sepBuf[:0], w.lastKey, key)
		w.addIndexEntry(w.sepBuf, w.pendingBH)
		w.pendingIndexEntry = false
	}

	if w.filter != nil {
		w.filter.addKey(key)
	}

	if w.meta.EntryCount == 0 {
		w.meta.SmallestKey = append(w.meta.SmallestKey[:0], key...)
	}
	w.lastKey = append(w.lastKey[:0], key...)
	w.meta.EntryCount++
	w.block.add(key, value)

	if w.block.estimatedSize() >= w.blockSize {
		w.flush()
	}
	return w.err
}

// flush finishes the current data block and writes it out.
func (w *Writer) flush() {
	if w.err != nil || w.block.nEntries == 0 {
		return
	}
	bh, err := w.writeBlock(w.block.finish(), w.compressor)
	if err != nil {
		w.err = err
		return
	}
	w.pendingBH = bh
	w.pendingIndexEntry = true
	if w.filter != nil {
		w.filter.startBlock(w.offset)
	}
}

func (w *Writer) addIndexEntry(sep []byte, bh BlockHandle) {
	var buf [maxBlockHandleLen]byte
	n := encodeBlockHandle(buf[:], bh)
	w.indexBlock.add(sep, buf[:n])
}

// writeBlock writes b with its 5-byte trailer and returns its handle.
func (w *Writer) writeBlock(b []byte, c compress.Compressor) (BlockHandle, error) {
	blockType := byte(noCompressionBlockType)
	if c.Type() == compress.CompressTypeSnappy {
		compressed := c.Encode(w.compressedBuf, b)
		w.compressedBuf = compressed[:cap(compressed)]
		// Keep the compressed form only if it saves more than 12.5%.
		if len(compressed) < len(b)-len(b)/8 {
			blockType = snappyCompressionBlockType
			b = compressed
		}
	}

	bh := BlockHandle{Offset: w.offset, Length: uint64(len(b))}

	checksum := crc.New(b).Update([]byte{blockType}).Value()
	trailer := w.tmp[:blockTrailerLen]
	trailer[0] = blockType
	binary.LittleEndian.PutUint32(trailer[1:5], checksum)

	if _, err := w.bw.Write(b); err != nil {
		return BlockHandle{}, err
	}
	if _, err := w.bw.Write(trailer); err != nil {
		return BlockHandle{}, err
	}
	w.offset += uint64(len(b)) + blockTrailerLen
	return bh, nil
}

// EstimatedSize returns the table file size were the writer closed now.
func (w *Writer) EstimatedSize() uint64 {
	return w.offset + uint64(w.block.estimatedSize()+w.indexBlock.estimatedSize()) + footerLen
}

// Metadata returns the writer metadata. Only valid after Close.
func (w *Writer) Metadata() (*WriterMetadata, error) {
	if w.bw != nil {
		return nil, errors.New("shale/sstable: metadata is not available until after the table is closed")
	}
	return &w.meta, nil
}

// Close finishes writing the table: the final data block, the filter and
// meta-index blocks, the index block and the footer. It closes the file.
func (w *Writer) Close() (err error) {
	defer func() {
		if w.file == nil {
			return
		}
		if cerr := w.file.Close(); cerr != nil && err == nil {
			err = cerr
			w.err = cerr
		}
		w.file = nil
	}()

	if w.err != nil {
		return w.err
	}

	// Finish the last data block and its deferred index entry, keyed by a
	// short successor of the largest key.
	w.flush()
	if w.err != nil {
		return w.err
	}
	if w.pendingIndexEntry {
		w.sepBuf = w.successor(w.sepBuf[:0], w.lastKey)
		w.addIndexEntry(w.sepBuf, w.pendingBH)
		w.pendingIndexEntry = false
	}
	w.meta.LargestKey = append(w.meta.LargestKey[:0], w.lastKey...)

	// The filter block is written raw. Filters are high entropy and barely
	// compress.
	var metaindexBlock blockWriter
	metaindexBlock.cmp = w.cmp
	metaindexBlock.restartInterval = 1
	if w.filter != nil {
		bh, err := w.writeBlock(w.filter.finish(), compress.NoCompressor)
		if err != nil {
			w.err = err
			return w.err
		}
		var buf [maxBlockHandleLen]byte
		n := encodeBlockHandle(buf[:], bh)
		metaindexBlock.add([]byte(metaFilterPrefix+w.filterName), buf[:n])
	}

	metaindexBH, err := w.writeBlock(metaindexBlock.finish(), w.compressor)
	if err != nil {
		w.err = err
		return w.err
	}
	indexBH, err := w.writeBlock(w.indexBlock.finish(), w.compressor)
	if err != nil {
		w.err = err
		return w.err
	}

	f := footer{metaindexBH: metaindexBH, indexBH: indexBH}
	if _, err := w.bw.Write(f.encode(w.tmp[:])); err != nil {
		w.err = err
		return w.err
	}
	w.offset += footerLen

	if err := w.bw.Flush(); err != nil {
		w.err = err
		return w.err
	}
	w.bw = nil
	if err := w.file.Sync(); err != nil {
		w.err = err
		return w.err
	}

	w.meta.Size = w.offset

	// Make any future writes fail.
	w.err = errors.New("shale/sstable: writer is closed")
	return nil
}
