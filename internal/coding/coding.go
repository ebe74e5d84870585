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

// Package coding implements the fixed and variable length integer encodings
// shared by the table and log formats. All fixed-width values are
// little-endian regardless of host byte order.
package coding

import "encoding/binary"

const (
	// MaxVarint32Len is the maximum encoded length of a 32-bit varint.
	MaxVarint32Len = 5
	// MaxVarint64Len is the maximum encoded length of a 64-bit varint.
	MaxVarint64Len = 10
)

// AppendFixed32 appends v to dst as 4 little-endian bytes.
func AppendFixed32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// AppendFixed64 appends v to dst as 8 little-endian bytes.
func AppendFixed64(dst []byte, v uint64) []byte {
	return append(dst,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// DecodeFixed32 decodes 4 little-endian bytes. REQUIRES len(b) >= 4.
func DecodeFixed32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// DecodeFixed64 decodes 8 little-endian bytes. REQUIRES len(b) >= 8.
func DecodeFixed64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

// AppendVarint32 appends v to dst in varint encoding, seven bits per byte
// with the continuation bit in the high bit.
func AppendVarint32(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// AppendVarint64 appends v to dst in varint encoding.
func AppendVarint64(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// DecodeVarint32 decodes a 32-bit varint from the front of b, returning the
// value and the number of bytes consumed. A zero count means the input was
// truncated or the encoding overran 5 bytes.
func DecodeVarint32(b []byte) (uint32, int) {
	var v uint32
	for i := 0; i < len(b) && i < MaxVarint32Len; i++ {
		c := b[i]
		if c < 0x80 {
			v |= uint32(c) << uint(7*i)
			return v, i + 1
		}
		v |= uint32(c&0x7f) << uint(7*i)
	}
	return 0, 0
}

// DecodeVarint64 decodes a 64-bit varint from the front of b, returning the
// value and the number of bytes consumed. A zero count means the input was
// truncated or the encoding overran 10 bytes.
func DecodeVarint64(b []byte) (uint64, int) {
	var v uint64
	for i := 0; i < len(b) && i < MaxVarint64Len; i++ {
		c := b[i]
		if c < 0x80 {
			v |= uint64(c) << uint(7*i)
			return v, i + 1
		}
		v |= uint64(c&0x7f) << uint(7*i)
	}
	return 0, 0
}

// VarintLength returns the number of bytes needed to varint-encode v.
func VarintLength(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// AppendLengthPrefixed appends s to dst as a varint32 length followed by the
// raw bytes.
func AppendLengthPrefixed(dst, s []byte) []byte {
	dst = AppendVarint32(dst, uint32(len(s)))
	return append(dst, s...)
}

// DecodeLengthPrefixed decodes a length-prefixed byte string from the front
// of b, returning the string and the number of bytes consumed. A zero count
// means the input was truncated.
func DecodeLengthPrefixed(b []byte) ([]byte, int) {
	v, n := DecodeVarint32(b)
	if n == 0 || uint32(len(b)-n) < v {
		return nil, 0
	}
	return b[n : n+int(v) : n+int(v)], n + int(v)
}
