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

package vfs

import "sync/atomic"

// SyncingFileOptions holds the options for a syncingFile.
type SyncingFileOptions struct {
	BytesPerSync int
}

type syncingFile struct {
	File
	fd           uintptr
	bytesPerSync int64
	offset       int64 // updated atomically
	syncOffset   int64 // updated atomically
	syncData     func() error
	syncTo       func(offset int64) error
}

// NewSyncingFile wraps a writable file and ensures that data is synced
// periodically as it is written. Rather than one large sync when the file is
// finished, the page cache is flushed every BytesPerSync, smoothing out disk
// write latencies.
func NewSyncingFile(f File, opts SyncingFileOptions) File {
	s := &syncingFile{
		File:         f,
		bytesPerSync: int64(opts.BytesPerSync),
	}
	if fd, ok := f.(fdGetter); ok {
		s.fd = fd.Fd()
	}
	s.init()
	return s
}

// fdGetter is an interface for a file with an Fd() method. Incremental sync
// optimizations rely on the raw descriptor being reachable.
type fdGetter interface {
	Fd() uintptr
}

func (f *syncingFile) Write(p []byte) (n int, err error) {
	n, err = f.File.Write(p)
	if err != nil {
		return n, err
	}
	offset := atomic.AddInt64(&f.offset, int64(n))
	if err := f.maybeSync(offset); err != nil {
		return n, err
	}
	return n, nil
}

func (f *syncingFile) maybeSync(offset int64) error {
	if f.bytesPerSync <= 0 {
		return nil
	}
	syncOffset := atomic.LoadInt64(&f.syncOffset)
	if offset-syncOffset < f.bytesPerSync {
		return nil
	}
	atomic.StoreInt64(&f.syncOffset, offset)
	return f.syncTo(offset)
}

func (f *syncingFile) Sync() error {
	atomic.StoreInt64(&f.syncOffset, atomic.LoadInt64(&f.offset))
	return f.syncData()
}
