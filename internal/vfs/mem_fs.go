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

import (
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// NewMem returns a new memory-backed FS. Safe for concurrent use. Intended
// for tests; paths are interpreted with slash separators.
func NewMem() FS {
	return &memFS{
		files: make(map[string]*memNode),
	}
}

type memFS struct {
	mu    sync.Mutex
	files map[string]*memNode
}

func (fs *memFS) clean(name string) string {
	return path.Clean(strings.ReplaceAll(name, string(os.PathSeparator), "/"))
}

func (fs *memFS) Create(name string) (File, error) {
	name = fs.clean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := &memNode{name: path.Base(name), modTime: time.Now()}
	fs.files[name] = n
	return &memFile{n: n, write: true}, nil
}

func (fs *memFS) Open(name string) (File, error) {
	name = fs.clean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.files[name]
	if n == nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return &memFile{n: n}, nil
}

func (fs *memFS) Remove(name string) error {
	name = fs.clean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.files[name]; !ok {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrNotExist}
	}
	delete(fs.files, name)
	return nil
}

func (fs *memFS) Rename(oldname, newname string) error {
	oldname, newname = fs.clean(oldname), fs.clean(newname)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.files[oldname]
	if n == nil {
		return &os.PathError{Op: "rename", Path: oldname, Err: os.ErrNotExist}
	}
	delete(fs.files, oldname)
	n.name = path.Base(newname)
	fs.files[newname] = n
	return nil
}

func (fs *memFS) MkdirAll(dir string, perm os.FileMode) error {
	return nil
}

func (fs *memFS) List(dir string) ([]string, error) {
	dir = fs.clean(dir)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var names []string
	prefix := dir + "/"
	if dir == "." || dir == "/" {
		prefix = ""
	}
	for name := range fs.files {
		if strings.HasPrefix(name, prefix) {
			names = append(names, strings.TrimPrefix(name, prefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (fs *memFS) Stat(name string) (os.FileInfo, error) {
	name = fs.clean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := fs.files[name]
	if n == nil {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
	}
	return n.stat(), nil
}

func (fs *memFS) PathBase(p string) string {
	return path.Base(fs.clean(p))
}

func (fs *memFS) PathJoin(elem ...string) string {
	return path.Join(elem...)
}

func (fs *memFS) PathDir(p string) string {
	return path.Dir(fs.clean(p))
}

// memNode holds a file's contents; handles share it.
type memNode struct {
	name string

	mu      sync.Mutex
	data    []byte
	modTime time.Time
	syncs   int
}

func (n *memNode) stat() *memFileInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return &memFileInfo{
		name:    n.name,
		size:    int64(len(n.data)),
		modTime: n.modTime,
	}
}

type memFile struct {
	n      *memNode
	rpos   int
	write  bool
	closed bool
}

func (f *memFile) Close() error {
	f.closed = true
	return nil
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, errors.New("vfs: read of closed file")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if f.rpos >= len(f.n.data) {
		return 0, io.EOF
	}
	n := copy(p, f.n.data[f.rpos:])
	f.rpos += n
	return n, nil
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, errors.New("vfs: read of closed file")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if off >= int64(len(f.n.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.n.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, errors.New("vfs: write of closed file")
	}
	if !f.write {
		return 0, errors.New("vfs: file was not created for writing")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	f.n.data = append(f.n.data, p...)
	f.n.modTime = time.Now()
	return len(p), nil
}

func (f *memFile) Stat() (os.FileInfo, error) {
	return f.n.stat(), nil
}

func (f *memFile) Sync() error {
	if f.closed {
		return errors.New("vfs: sync of closed file")
	}
	f.n.mu.Lock()
	f.n.syncs++
	f.n.mu.Unlock()
	return nil
}

type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (fi *memFileInfo) Name() string       { return fi.name }
func (fi *memFileInfo) Size() int64        { return fi.size }
func (fi *memFileInfo) Mode() os.FileMode  { return os.FileMode(0644) }
func (fi *memFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *memFileInfo) IsDir() bool        { return false }
func (fi *memFileInfo) Sys() interface{}   { return nil }
