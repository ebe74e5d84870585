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

package arena

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestArenaSmallAllocations(t *testing.T) {
	a := New()
	for i := 0; i < 100; i++ {
		p := a.Allocate(100)
		require.Equal(t, 100, len(p))
		for j := range p {
			p[j] = byte(i)
		}
	}
	// 100 x 100 bytes fit in 3 chunks of 4096 (40 entries per chunk).
	require.Equal(t, 3, len(a.chunks))
	require.Equal(t, 3*4096, a.chunksMemory)
}

func TestArenaDedicatedChunk(t *testing.T) {
	a := New()
	small := a.Allocate(10)
	require.Equal(t, 10, len(small))

	big := a.Allocate(5000)
	require.Equal(t, 5000, len(big))
	require.Equal(t, 2, len(a.chunks))
	require.Equal(t, 5000, len(a.chunks[1]))

	// The current chunk's cursor was not advanced by the dedicated chunk.
	next := a.Allocate(10)
	require.Equal(t, 10, len(next))
	require.Equal(t, 2, len(a.chunks))
}

func TestArenaDiscardsRemainder(t *testing.T) {
	a := New()
	// Four requests below the dedicated chunk threshold share one chunk,
	// leaving 96 of its 4096 bytes free.
	for i := 0; i < 4; i++ {
		a.Allocate(1000)
	}
	// 200 does not fit in the 96 remaining bytes and is below the dedicated
	// chunk threshold, so a fresh 4096-byte chunk is carved.
	a.Allocate(200)
	require.Equal(t, 2, len(a.chunks))
	require.Equal(t, 2*4096, a.chunksMemory)
}

func TestArenaAligned(t *testing.T) {
	align := uintptr(unsafe.Sizeof(uintptr(0)))
	a := New()
	rng := rand.New(rand.NewSource(uint64(1)))
	for i := 0; i < 200; i++ {
		if rng.Intn(2) == 0 {
			a.Allocate(1 + rng.Intn(7))
			continue
		}
		p := a.AllocateAligned(8 + rng.Intn(100))
		require.Zero(t, uintptr(unsafe.Pointer(&p[0]))&(align-1))
	}
}

func TestArenaMemoryUsage(t *testing.T) {
	a := New()
	require.Equal(t, 0, a.MemoryUsage())
	a.Allocate(1)
	usage := a.MemoryUsage()
	require.GreaterOrEqual(t, usage, 4096)
	a.Allocate(5000)
	require.Greater(t, a.MemoryUsage(), usage+5000-1)
}
