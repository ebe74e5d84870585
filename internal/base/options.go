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

package base

// CacheOptions configures a block cache.
type CacheOptions struct {
	// Size is the total capacity of the cache in bytes, split evenly between
	// the shards.
	Size int64
	// Shards is the number of independent sub-caches. Must be a power of two.
	Shards int
	// HashSize is the initial total bucket count of the per-shard hash
	// tables.
	HashSize int
	// Logger is used to report reference leaks.
	Logger Logger
}
