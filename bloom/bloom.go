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

// Package bloom implements a Bloom filter policy for the table filter
// block.
package bloom

import "github.com/shaledb/shale/internal/base"

// FilterPolicy is a base.FilterPolicy whose value is the number of bits per
// key to use. A good value is 10, which yields a filter with roughly a 1%
// false positive rate.
type FilterPolicy int

var _ base.FilterPolicy = FilterPolicy(0)

// Name implements base.FilterPolicy.
func (p FilterPolicy) Name() string {
	// Including the number of probes in the filter lets us change the probe
	// computation without invalidating filters already written to disk.
	return "shale.BuiltinBloomFilter2"
}

// AppendFilter implements base.FilterPolicy.
func (p FilterPolicy) AppendFilter(dst []byte, keys [][]byte) []byte {
	// 0.69 =~ ln(2), the factor minimizing the false positive rate for the
	// chosen bits-per-key.
	k := uint32(float64(p) * 0.69)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}

	nBits := len(keys) * int(p)
	// A small length risks a very high false positive rate.
	if nBits < 64 {
		nBits = 64
	}
	nBytes := (nBits + 7) / 8
	nBits = nBytes * 8

	start := len(dst)
	dst = append(dst, make([]byte, nBytes+1)...)
	filter := dst[start : start+nBytes]

	for _, key := range keys {
		h := hash(key)
		// Double hashing: advance by a rotated copy of the hash per probe.
		delta := h>>17 | h<<15
		for j := uint32(0); j < k; j++ {
			bitpos := h % uint32(nBits)
			filter[bitpos/8] |= 1 << (bitpos % 8)
			h += delta
		}
	}
	dst[len(dst)-1] = byte(k)
	return dst
}

// MayContain implements base.FilterPolicy.
func (p FilterPolicy) MayContain(filter, key []byte) bool {
	if len(filter) < 2 {
		return false
	}
	k := filter[len(filter)-1]
	if k > 30 {
		// A k value beyond our range is reserved for future encodings.
		// Consider such filters a match.
		return true
	}
	nBits := uint32(8 * (len(filter) - 1))

	h := hash(key)
	delta := h>>17 | h<<15
	for j := byte(0); j < k; j++ {
		bitpos := h % nBits
		if filter[bitpos/8]&(1<<(bitpos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

// hash is the fast byte-string hash used to derive the probe sequence,
// similar in spirit to the murmur hash.
func hash(b []byte) uint32 {
	const (
		seed = 0xbc9f1d34
		m    = 0xc6a4a793
	)
	h := uint32(seed) ^ uint32(len(b))*m
	for ; len(b) >= 4; b = b[4:] {
		h += uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		h *= m
		h ^= h >> 16
	}
	switch len(b) {
	case 3:
		h += uint32(b[2]) << 16
		fallthrough
	case 2:
		h += uint32(b[1]) << 8
		fallthrough
	case 1:
		h += uint32(b[0])
		h *= m
		h ^= h >> 24
	}
	return h
}
