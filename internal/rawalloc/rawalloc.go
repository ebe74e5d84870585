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

// Package rawalloc provides byte slice allocation that skips the zeroing
// done by make. Callers must overwrite the full length before reading it.
package rawalloc

import (
	"unsafe"
)

const maxArrayLen = 1<<31 - 1

//go:linkname mallocgc runtime.mallocgc
func mallocgc(size uintptr, typ unsafe.Pointer, needzero bool) unsafe.Pointer

// New returns a byte slice of the given length and capacity whose contents
// are uninitialized.
func New(length, capacity int) []byte {
	ptr := mallocgc(uintptr(capacity), nil, false)
	return (*[maxArrayLen]byte)(ptr)[:length:capacity]
}
