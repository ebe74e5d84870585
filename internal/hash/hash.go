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

package hash

import "github.com/cespare/xxhash/v2"

// Sum32 hashes b down to 32 bits. The cache uses the high bits of this value
// for shard selection, so the fold mixes both halves of the 64-bit hash.
func Sum32(b []byte) uint32 {
	h := xxhash.Sum64(b)
	return uint32(h>>32) ^ uint32(h)
}

// Sum64 hashes b to 64 bits.
func Sum64(b []byte) uint64 {
	return xxhash.Sum64(b)
}
