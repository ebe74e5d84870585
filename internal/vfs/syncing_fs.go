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

func (f *syncingFile) initGeneric() {
	f.syncData = f.File.Sync
	f.syncTo = func(offset int64) error {
		return f.File.Sync()
	}
}

// syncingFS wraps an FS with one that wraps newly created files with
// NewSyncingFile.
type syncingFS struct {
	FS

	syncOpts SyncingFileOptions
}

// WithSyncingFS returns an FS whose created files sync incrementally.
func WithSyncingFS(fs FS, opts SyncingFileOptions) FS {
	return syncingFS{
		FS:       fs,
		syncOpts: opts,
	}
}

func (fs syncingFS) Create(name string) (File, error) {
	f, err := fs.FS.Create(name)
	if err != nil {
		return nil, err
	}
	return NewSyncingFile(f, fs.syncOpts), nil
}
