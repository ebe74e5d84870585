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

// FilterPolicy answers probabilistic membership questions for a set of keys.
// The canonical implementation is a Bloom filter.
type FilterPolicy interface {
	// Name identifies the policy. A table written with one policy cannot be
	// read with a policy of a different name.
	Name() string

	// AppendFilter appends to dst an encoded filter over keys and returns the
	// extended buffer.
	AppendFilter(dst []byte, keys [][]byte) []byte

	// MayContain reports whether the filter may contain key. False positives
	// are possible, false negatives are not.
	MayContain(filter, key []byte) bool
}
