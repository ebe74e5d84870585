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
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/shaledb/shale/internal/base"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func buildTestBlock(t *testing.T, restartInterval int, kvs [][2]string) block {
	w := blockWriter{cmp: base.DefaultComparer.Compare, restartInterval: restartInterval}
	for _, kv := range kvs {
		w.add([]byte(kv[0]), []byte(kv[1]))
	}
	b := w.finish()
	// The writer's buffer is reused across blocks; copy for safety.
	return append(block(nil), b...)
}

func TestBlockWriterRestarts(t *testing.T) {
	kvs := [][2]string{
		{"aaaa", "1"},
		{"aaab", "2"},
		{"aaac", "3"},
		{"aabb", "4"},
	}
	w := blockWriter{cmp: base.DefaultComparer.Compare, restartInterval: 2}
	var offsets []int
	for _, kv := range kvs {
		offsets = append(offsets, len(w.buf))
		w.add([]byte(kv[0]), []byte(kv[1]))
	}
	b := w.finish()

	numRestarts := binary.LittleEndian.Uint32(b[len(b)-4:])
	require.Equal(t, uint32(2), numRestarts)
	restart0 := binary.LittleEndian.Uint32(b[len(b)-12:])
	restart1 := binary.LittleEndian.Uint32(b[len(b)-8:])
	require.Equal(t, uint32(0), restart0)
	require.Equal(t, uint32(offsets[2]), restart1)

	// The entry at a restart repeats the full key; in between, shared
	// prefixes are elided. "aaab" shares 3 bytes with "aaaa".
	require.Equal(t, byte(3), b[offsets[1]])
}

func TestBlockIterSpecScenario(t *testing.T) {
	b := buildTestBlock(t, 2, [][2]string{
		{"aaaa", "1"},
		{"aaab", "2"},
		{"aaac", "3"},
		{"aabb", "4"},
	})
	i, err := newBlockIter(base.DefaultComparer.Compare, b)
	require.NoError(t, err)

	k, v := i.SeekGE([]byte("aaab"))
	require.Equal(t, "aaab", string(k))
	require.Equal(t, "2", string(v))

	k, v = i.SeekGE([]byte("aaba"))
	require.Equal(t, "aabb", string(k))
	require.Equal(t, "4", string(v))

	k, _ = i.SeekGE([]byte("zzz"))
	require.Nil(t, k)
	require.False(t, i.Valid())
	require.NoError(t, i.Error())
}

func TestBlockIterScan(t *testing.T) {
	var kvs [][2]string
	for i := 0; i < 100; i++ {
		kvs = append(kvs, [2]string{
			fmt.Sprintf("key-%04d", i),
			fmt.Sprintf("val-%04d", i),
		})
	}
	for _, restartInterval := range []int{1, 2, 16} {
		b := buildTestBlock(t, restartInterval, kvs)
		it, err := newBlockIter(base.DefaultComparer.Compare, b)
		require.NoError(t, err)

		n := 0
		for k, v := it.First(); k != nil; k, v = it.Next() {
			require.Equal(t, kvs[n][0], string(k))
			require.Equal(t, kvs[n][1], string(v))
			n++
		}
		require.Equal(t, len(kvs), n)

		// Each key seeks to itself, and a second identical seek is
		// indistinguishable from the first.
		for _, kv := range kvs {
			k, v := it.SeekGE([]byte(kv[0]))
			require.Equal(t, kv[0], string(k))
			require.Equal(t, kv[1], string(v))
			k2, v2 := it.SeekGE([]byte(kv[0]))
			require.Equal(t, string(k), string(k2))
			require.Equal(t, string(v), string(v2))
		}
	}
}

func TestBlockIterReverse(t *testing.T) {
	var kvs [][2]string
	for i := 0; i < 50; i++ {
		kvs = append(kvs, [2]string{
			fmt.Sprintf("key-%04d", i),
			fmt.Sprintf("val-%04d", i),
		})
	}
	b := buildTestBlock(t, 4, kvs)
	it, err := newBlockIter(base.DefaultComparer.Compare, b)
	require.NoError(t, err)

	n := len(kvs)
	for k, v := it.Last(); k != nil; k, v = it.Prev() {
		n--
		require.Equal(t, kvs[n][0], string(k))
		require.Equal(t, kvs[n][1], string(v))
	}
	require.Equal(t, 0, n)

	// Forward then backward across a restart boundary.
	it.SeekGE([]byte("key-0008"))
	k, v := it.Prev()
	require.Equal(t, "key-0007", string(k))
	require.Equal(t, "val-0007", string(v))
	k, v = it.Next()
	require.Equal(t, "key-0008", string(k))
	require.Equal(t, "val-0008", string(v))
}

func TestBlockIterSeekLT(t *testing.T) {
	b := buildTestBlock(t, 2, [][2]string{
		{"b", "1"},
		{"d", "2"},
		{"f", "3"},
	})
	it, err := newBlockIter(base.DefaultComparer.Compare, b)
	require.NoError(t, err)

	k, _ := it.SeekLT([]byte("a"))
	require.Nil(t, k)

	k, v := it.SeekLT([]byte("c"))
	require.Equal(t, "b", string(k))
	require.Equal(t, "1", string(v))

	k, v = it.SeekLT([]byte("d"))
	require.Equal(t, "b", string(k))
	require.Equal(t, "1", string(v))

	k, v = it.SeekLT([]byte("z"))
	require.Equal(t, "f", string(k))
	require.Equal(t, "3", string(v))
}

func TestBlockIterRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(uint64(42)))
	var kvs [][2]string
	for i := 0; i < 500; i++ {
		kvs = append(kvs, [2]string{
			fmt.Sprintf("%08x", i*7),
			fmt.Sprintf("%d", rng.Intn(1 << 20)),
		})
	}
	// Keys must be sorted bytewise.
	for i := 1; i < len(kvs); i++ {
		require.Less(t, kvs[i-1][0], kvs[i][0])
	}
	b := buildTestBlock(t, 16, kvs)
	it, err := newBlockIter(base.DefaultComparer.Compare, b)
	require.NoError(t, err)

	for trial := 0; trial < 1000; trial++ {
		target := []byte(fmt.Sprintf("%08x", rng.Intn(500*7+10)))
		k, _ := it.SeekGE(target)

		// Reference: linear scan for the smallest key >= target.
		var want string
		for _, kv := range kvs {
			if bytes.Compare([]byte(kv[0]), target) >= 0 {
				want = kv[0]
				break
			}
		}
		if want == "" {
			require.Nil(t, k)
		} else {
			require.Equal(t, want, string(k))
		}
	}
}

func TestBlockCorrupt(t *testing.T) {
	_, err := newBlockIter(base.DefaultComparer.Compare, block{1, 2})
	require.Error(t, err)
	require.True(t, base.IsCorruptionError(err))

	// A restart count that overruns the block.
	bad := make(block, 8)
	binary.LittleEndian.PutUint32(bad[4:], 100)
	_, err = newBlockIter(base.DefaultComparer.Compare, bad)
	require.Error(t, err)
	require.True(t, base.IsCorruptionError(err))

	// Zero restart points.
	zero := make(block, 8)
	_, err = newBlockIter(base.DefaultComparer.Compare, zero)
	require.Error(t, err)
}

func TestBlockWriterPanicsOnUnsortedKeys(t *testing.T) {
	w := blockWriter{cmp: base.DefaultComparer.Compare, restartInterval: 16}
	w.add([]byte("b"), nil)
	require.Panics(t, func() {
		w.add([]byte("a"), nil)
	})
}

func TestBlockEstimatedSize(t *testing.T) {
	w := blockWriter{cmp: base.DefaultComparer.Compare, restartInterval: 16}
	require.Equal(t, 4, w.estimatedSize())
	w.add([]byte("key"), []byte("value"))
	require.Equal(t, len(w.buf)+4*len(w.restarts)+4, w.estimatedSize())
	b := w.finish()
	require.Equal(t, len(b), 3+3+5+4+4)
}
