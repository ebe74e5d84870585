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
	"testing"

	"github.com/shaledb/shale/bloom"
	"github.com/stretchr/testify/require"
)

func TestFilterTrailerLayout(t *testing.T) {
	f := newFilterWriter(bloom.FilterPolicy(10))
	f.startBlock(0)
	f.addKey([]byte("x"))
	f.addKey([]byte("y"))
	b := f.finish()

	require.Equal(t, byte(filterBaseLg), b[len(b)-1])
	arrayOffset := binary.LittleEndian.Uint32(b[len(b)-5 : len(b)-1])
	num := (len(b) - 5 - int(arrayOffset)) / 4
	require.Equal(t, 1, num)
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(b[arrayOffset:]))
}

func TestFilterTwoBlocks(t *testing.T) {
	policy := bloom.FilterPolicy(10)
	f := newFilterWriter(policy)

	// Data block at offset 0 contains keys x and y; block at 4096 contains
	// z. base_lg 11 puts them in filter strides 0 and 2.
	f.startBlock(0)
	f.addKey([]byte("x"))
	f.addKey([]byte("y"))
	f.startBlock(4096)
	f.addKey([]byte("z"))
	b := f.finish()

	r := newFilterReader(policy, b)
	require.True(t, r.valid())
	require.Equal(t, 3, r.num)

	require.True(t, r.mayContain(0, []byte("x")))
	require.True(t, r.mayContain(0, []byte("y")))
	require.True(t, r.mayContain(4096, []byte("z")))

	// z went into the group for block 4096, not block 0.
	require.False(t, r.mayContain(0, []byte("z")))
	require.False(t, r.mayContain(4096, []byte("x")))

	// The stride between them holds an empty filter, which matches nothing.
	require.False(t, r.mayContain(2048, []byte("x")))

	// Past the last filter, reads are conservatively a match.
	require.True(t, r.mayContain(1<<20, []byte("anything")))
}

func TestFilterEmptyBlock(t *testing.T) {
	policy := bloom.FilterPolicy(10)
	f := newFilterWriter(policy)
	b := f.finish()

	// No keys, no filters: just the trailer.
	require.Equal(t, 5, len(b))
	r := newFilterReader(policy, b)
	require.True(t, r.valid())
	require.True(t, r.mayContain(0, []byte("x")))
}

func TestFilterReaderMalformed(t *testing.T) {
	policy := bloom.FilterPolicy(10)

	r := newFilterReader(policy, nil)
	require.False(t, r.valid())
	require.True(t, r.mayContain(0, []byte("x")))

	r = newFilterReader(policy, []byte{1, 2, 3})
	require.False(t, r.valid())
	require.True(t, r.mayContain(0, []byte("x")))
}

func TestFilterStartBlockMonotonic(t *testing.T) {
	f := newFilterWriter(bloom.FilterPolicy(10))
	f.startBlock(8192)
	require.Panics(t, func() {
		f.startBlock(0)
	})
}
