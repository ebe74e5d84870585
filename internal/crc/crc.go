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

// Package crc implements the masked Castagnoli checksum stored in table
// block trailers and log frame headers. The mask keeps a checksum stored
// inside data whose checksum is later computed from degenerating into a
// fixed point.
package crc

import "hash/crc32"

// CRC is a running Castagnoli checksum.
type CRC uint32

const maskDelta = 0xa282ead8

var table = crc32.MakeTable(crc32.Castagnoli)

// New computes the checksum of b.
func New(b []byte) CRC {
	return CRC(0).Update(b)
}

// Update extends the checksum with b.
func (c CRC) Update(b []byte) CRC {
	return CRC(crc32.Update(uint32(c), table, b))
}

// Value returns the masked form of the checksum, suitable for storage.
func (c CRC) Value() uint32 {
	return uint32(c>>15|c<<17) + maskDelta
}

// Unmask recovers the raw checksum from its stored masked form.
func Unmask(v uint32) uint32 {
	rot := v - maskDelta
	return rot>>17 | rot<<15
}
