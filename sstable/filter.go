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

	"github.com/shaledb/shale/internal/base"
)

const (
	// Filter i covers keys of data blocks whose offsets lie in
	// [i*2^filterBaseLg, (i+1)*2^filterBaseLg). A new filter is generated
	// every 2 KiB of data regardless of data block boundaries.
	filterBaseLg = 11
	filterBase   = 1 << filterBaseLg

	// maxFilterIndex bounds the catch-up loop in startBlock. Data block
	// offsets are caller supplied and non-decreasing, so the loop always
	// terminates; the bound guards against an offset from a corrupted
	// caller generating an absurd number of empty filters.
	maxFilterIndex = 1 << 30
)

// filterWriter accumulates keys per data-block offset stride and emits the
// filter block:
//
//	| filter 0 | filter 1 | ... | offsets[N]:u32 | array_offset:u32 | base_lg:u8 |
type filterWriter struct {
	policy base.FilterPolicy

	// Flattened keys pending the next filter generation.
	keyData   []byte
	keyStarts []int
	tmpKeys   [][]byte

	// Generated filters and their start offsets within data.
	data    []byte
	offsets []uint32
}

func newFilterWriter(policy base.FilterPolicy) *filterWriter {
	return &filterWriter{policy: policy}
}

// startBlock tells the writer that subsequent addKey calls belong to the
// data block starting at blockOffset. Filters are generated to catch up with
// the block's stride; strides containing no keys get empty filters.
func (f *filterWriter) startBlock(blockOffset uint64) {
	filterIndex := int(blockOffset / filterBase)
	if filterIndex < len(f.offsets) {
		panic("shale/sstable: filter block offsets must be non-decreasing")
	}
	if filterIndex > maxFilterIndex {
		panic("shale/sstable: filter index overflow")
	}
	for filterIndex > len(f.offsets) {
		f.generate()
	}
}

func (f *filterWriter) addKey(key []byte) {
	f.keyStarts = append(f.keyStarts, len(f.keyData))
	f.keyData = append(f.keyData, key...)
}

func (f *filterWriter) generate() {
	f.offsets = append(f.offsets, uint32(len(f.data)))
	if len(f.keyStarts) == 0 {
		// An empty filter; it matches nothing.
		return
	}

	f.keyStarts = append(f.keyStarts, len(f.keyData))
	f.tmpKeys = f.tmpKeys[:0]
	for i := 0; i+1 < len(f.keyStarts); i++ {
		f.tmpKeys = append(f.tmpKeys, f.keyData[f.keyStarts[i]:f.keyStarts[i+1]])
	}
	f.data = f.policy.AppendFilter(f.data, f.tmpKeys)

	f.tmpKeys = f.tmpKeys[:0]
	f.keyData = f.keyData[:0]
	f.keyStarts = f.keyStarts[:0]
}

// finish generates a filter for any pending keys and appends the offset
// array trailer, returning the complete filter block.
func (f *filterWriter) finish() []byte {
	if len(f.keyStarts) > 0 {
		f.generate()
	}

	arrayOffset := uint32(len(f.data))
	var tmp [4]byte
	for _, x := range f.offsets {
		binary.LittleEndian.PutUint32(tmp[:], x)
		f.data = append(f.data, tmp[:]...)
	}
	binary.LittleEndian.PutUint32(tmp[:], arrayOffset)
	f.data = append(f.data, tmp[:]...)
	f.data = append(f.data, filterBaseLg)
	return f.data
}

// filterReader answers may-contain queries against a filter block. Malformed
// blocks and out-of-range strides are conservatively treated as matches.
type filterReader struct {
	policy base.FilterPolicy
	data   []byte
	// offsets is the offset array region within data.
	offsets []byte
	num     int
	baseLg  uint
}

func newFilterReader(policy base.FilterPolicy, data []byte) filterReader {
	r := filterReader{policy: policy}
	n := len(data)
	if n < 5 {
		return r
	}
	baseLg := uint(data[n-1])
	arrayOffset := binary.LittleEndian.Uint32(data[n-5 : n-1])
	if int(arrayOffset) > n-5 {
		return r
	}
	r.data = data
	r.offsets = data[arrayOffset : n-5]
	r.num = len(r.offsets) / 4
	r.baseLg = baseLg
	return r
}

func (r *filterReader) valid() bool {
	return r.data != nil
}

func (r *filterReader) mayContain(blockOffset uint64, key []byte) bool {
	if !r.valid() {
		return true
	}
	index := int(blockOffset >> r.baseLg)
	if index >= r.num {
		// Errors are treated as potential matches.
		return true
	}
	start := binary.LittleEndian.Uint32(r.offsets[index*4:])
	var limit uint32
	if index+1 < r.num {
		limit = binary.LittleEndian.Uint32(r.offsets[(index+1)*4:])
	} else {
		limit = uint32(len(r.data) - len(r.offsets) - 5)
	}
	if start == limit {
		// An empty filter matches no keys.
		return false
	}
	if start > limit || int(limit) > len(r.data)-len(r.offsets)-5 {
		return true
	}
	return r.policy.MayContain(r.data[start:limit], key)
}
