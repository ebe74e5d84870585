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

// Package sstable implements readers and writers of immutable sorted tables.
//
// A table is a sequence of data blocks, a filter block (optional), a
// meta-index block, an index block and a fixed-size footer:
//
//	<data block 0>
//	...
//	<data block N-1>
//	[filter block]
//	<meta-index block>
//	<index block>
//	<footer>
//
// Each block on disk is followed by a 5-byte trailer holding the compression
// type and the masked CRC of the compressed contents plus the type byte.
// The footer locates the meta-index and index blocks and ends with the table
// magic number.
package sstable

import (
	"io"
	"os"

	"github.com/shaledb/shale/internal/base"
	"github.com/shaledb/shale/internal/coding"
)

const (
	blockTrailerLen   = 5
	maxBlockHandleLen = 2 * coding.MaxVarint64Len
	footerLen         = 2*maxBlockHandleLen + 8

	magic = "\x57\xfb\x80\x8b\x24\x75\x47\xdb"

	noCompressionBlockType     = 0
	snappyCompressionBlockType = 1

	// The metaindex key locating the filter block, suffixed with the filter
	// policy name.
	metaFilterPrefix = "filter."
)

// BlockHandle is the file offset and length of a block.
type BlockHandle struct {
	Offset, Length uint64
}

// encodeBlockHandle encodes h into dst, which must be at least
// maxBlockHandleLen bytes, returning the number of bytes encoded.
func encodeBlockHandle(dst []byte, h BlockHandle) int {
	b := coding.AppendVarint64(dst[:0], h.Offset)
	b = coding.AppendVarint64(b, h.Length)
	return len(b)
}

// decodeBlockHandle decodes a block handle from the front of src, returning
// the handle and the number of bytes decoded. A zero count means the input
// was malformed.
func decodeBlockHandle(src []byte) (BlockHandle, int) {
	offset, n := coding.DecodeVarint64(src)
	if n == 0 {
		return BlockHandle{}, 0
	}
	length, m := coding.DecodeVarint64(src[n:])
	if m == 0 {
		return BlockHandle{}, 0
	}
	return BlockHandle{offset, length}, n + m
}

// footer is the fixed-size table trailer: the meta-index and index handles,
// zero padded to 40 bytes, then the 8-byte magic.
type footer struct {
	metaindexBH BlockHandle
	indexBH     BlockHandle
}

func (f footer) encode(buf []byte) []byte {
	buf = buf[:footerLen]
	for i := range buf {
		buf[i] = 0
	}
	n := encodeBlockHandle(buf, f.metaindexBH)
	encodeBlockHandle(buf[n:], f.indexBH)
	copy(buf[footerLen-len(magic):], magic)
	return buf
}

func decodeFooter(buf []byte) (footer, error) {
	var f footer
	if len(buf) < footerLen {
		return f, base.CorruptionErrorf("shale/table: invalid table (footer too short): %d", len(buf))
	}
	buf = buf[len(buf)-footerLen:]
	if string(buf[footerLen-len(magic):]) != magic {
		return f, base.CorruptionErrorf("shale/table: invalid table (bad magic number)")
	}

	n := 0
	var m int
	f.metaindexBH, m = decodeBlockHandle(buf[n:])
	if m == 0 {
		return f, base.CorruptionErrorf("shale/table: invalid table (bad metaindex block handle)")
	}
	n += m
	f.indexBH, m = decodeBlockHandle(buf[n:])
	if m == 0 {
		return f, base.CorruptionErrorf("shale/table: invalid table (bad index block handle)")
	}
	return f, nil
}

// ReadableFile describes the smallest surface a table reader needs from a
// file: random access reads and a size.
type ReadableFile interface {
	io.ReaderAt
	io.Closer
	Stat() (os.FileInfo, error)
}

func readFooter(f ReadableFile) (footer, error) {
	stat, err := f.Stat()
	if err != nil {
		return footer{}, err
	}
	if stat.Size() < footerLen {
		return footer{}, base.CorruptionErrorf("shale/table: invalid table (file size is too small): %d", base.Safe(stat.Size()))
	}

	var buf [footerLen]byte
	off := stat.Size() - footerLen
	n, err := f.ReadAt(buf[:], off)
	if err != nil && err != io.EOF {
		return footer{}, err
	}
	if n < footerLen {
		return footer{}, base.CorruptionErrorf("shale/table: invalid table (footer too short): %d", n)
	}
	return decodeFooter(buf[:n])
}
