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
	"github.com/shaledb/shale/internal/base"
	"github.com/shaledb/shale/internal/cache/lrucache"
	"github.com/shaledb/shale/internal/consts"
)

// Compression is the per-block compression algorithm to use.
type Compression int

const (
	NoCompression Compression = iota
	SnappyCompression
)

func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "NoCompression"
	case SnappyCompression:
		return "Snappy"
	default:
		return "Unknown"
	}
}

// WriterOptions holds the parameters used to control building a table.
type WriterOptions struct {
	// BlockRestartInterval is the number of keys between restart points for
	// prefix compression of keys.
	BlockRestartInterval int

	// BlockSize is the target uncompressed size in bytes of each table block.
	BlockSize int

	// Comparer defines the total order over keys in the table.
	Comparer *base.Comparer

	// Compression defines the per-block compression to use.
	Compression Compression

	// FilterPolicy defines a filter algorithm (such as a Bloom filter) that
	// can reduce disk reads for Get calls. A nil policy writes no filter
	// block.
	FilterPolicy base.FilterPolicy

	// Logger is stored on the Writer; no write path logs through it.
	Logger base.Logger
}

// EnsureDefaults fills in any zero options with their default values.
func (o WriterOptions) EnsureDefaults() WriterOptions {
	if o.BlockRestartInterval <= 0 {
		o.BlockRestartInterval = consts.DefaultBlockRestartInterval
	}
	if o.BlockSize <= 0 {
		o.BlockSize = consts.DefaultBlockSize
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	return o
}

// ReaderOptions holds the parameters needed for reading a table.
type ReaderOptions struct {
	// Cache is the shared block cache consulted before issuing a read.
	// A nil cache reads every block from the file.
	Cache *lrucache.LruCache

	// Comparer defines the total order over keys in the table. Must match
	// the comparer the table was written with.
	Comparer *base.Comparer

	// FilterPolicy is consulted to skip data block reads in Get. Must match
	// the policy the table was written with, by name.
	FilterPolicy base.FilterPolicy

	// VerifyChecksums enables per-block CRC verification on every read.
	VerifyChecksums bool

	// Logger is stored on the Reader; corruption is returned as errors and
	// not logged through it.
	Logger base.Logger
}

// EnsureDefaults fills in any zero options with their default values.
func (o ReaderOptions) EnsureDefaults() ReaderOptions {
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	return o
}
