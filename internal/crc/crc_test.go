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

package crc

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestCastagnoli(t *testing.T) {
	// The raw (unmasked) checksum is the standard Castagnoli CRC.
	b := []byte("123456789")
	require.Equal(t, crc32.Checksum(b, crc32.MakeTable(crc32.Castagnoli)), uint32(New(b)))
}

func TestMaskUnmask(t *testing.T) {
	rng := rand.New(rand.NewSource(uint64(3)))
	for i := 0; i < 100000; i++ {
		x := rng.Uint32()
		require.Equal(t, x, Unmask(CRC(x).Value()))
	}
	for _, x := range []uint32{0, 1, 0xffffffff, 0xa282ead8} {
		require.Equal(t, x, Unmask(CRC(x).Value()))
	}
}

func TestMaskIsNotIdentity(t *testing.T) {
	b := []byte("foo")
	c := New(b)
	require.NotEqual(t, uint32(c), c.Value())
}

func TestUpdateExtends(t *testing.T) {
	full := New([]byte("hello world"))
	split := New([]byte("hello ")).Update([]byte("world"))
	require.Equal(t, full, split)
}
