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
	"testing"

	"github.com/shaledb/shale/internal/base"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestBlockHandleRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(uint64(7)))
	var buf [maxBlockHandleLen]byte
	for i := 0; i < 1000; i++ {
		h := BlockHandle{
			Offset: rng.Uint64() >> uint(rng.Intn(64)),
			Length: rng.Uint64() >> uint(rng.Intn(64)),
		}
		n := encodeBlockHandle(buf[:], h)
		require.LessOrEqual(t, n, maxBlockHandleLen)
		decoded, m := decodeBlockHandle(buf[:n])
		require.Equal(t, n, m)
		require.Equal(t, h, decoded)
	}
}

func TestBlockHandleDecodeTruncated(t *testing.T) {
	var buf [maxBlockHandleLen]byte
	n := encodeBlockHandle(buf[:], BlockHandle{Offset: 1 << 40, Length: 1 << 33})
	for i := 0; i < n; i++ {
		_, m := decodeBlockHandle(buf[:i])
		require.Zero(t, m)
	}
}

func TestFooterRoundTrip(t *testing.T) {
	f := footer{
		metaindexBH: BlockHandle{Offset: 7, Length: 42},
		indexBH:     BlockHandle{Offset: 50, Length: 100},
	}
	var buf [footerLen]byte
	enc := f.encode(buf[:])
	require.Equal(t, footerLen, len(enc))

	decoded, err := decodeFooter(enc)
	require.NoError(t, err)
	require.Equal(t, f, decoded)
}

func TestFooterBadMagic(t *testing.T) {
	f := footer{
		metaindexBH: BlockHandle{Offset: 7, Length: 42},
		indexBH:     BlockHandle{Offset: 50, Length: 100},
	}
	var buf [footerLen]byte
	enc := f.encode(buf[:])

	for bit := 0; bit < 64; bit += 7 {
		flipped := append([]byte(nil), enc...)
		flipped[footerLen-8+bit/8] ^= 1 << (bit % 8)
		_, err := decodeFooter(flipped)
		require.Error(t, err)
		require.True(t, base.IsCorruptionError(err))
		require.Contains(t, err.Error(), "bad magic number")
	}
}

func TestFooterTooShort(t *testing.T) {
	_, err := decodeFooter(make([]byte, 10))
	require.Error(t, err)
	require.True(t, base.IsCorruptionError(err))
}
