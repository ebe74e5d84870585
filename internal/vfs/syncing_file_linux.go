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

//go:build linux
// +build linux

package vfs

import "golang.org/x/sys/unix"

func (f *syncingFile) init() {
	if f.fd == 0 {
		f.initGeneric()
		return
	}

	f.syncData = func() error {
		return unix.Fdatasync(int(f.fd))
	}
	f.syncTo = func(offset int64) error {
		// Write out the dirty pages without waiting for completion. The
		// periodic Fdatasync picks up whatever is still in flight.
		const flags = unix.SYNC_FILE_RANGE_WRITE
		return unix.SyncFileRange(int(f.fd), 0, offset, flags)
	}
}
