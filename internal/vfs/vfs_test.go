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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemFS(t *testing.T) {
	fs := NewMem()

	f, err := fs.Create("dir/a")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = f.Write([]byte(" world"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	g, err := fs.Open("dir/a")
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err := g.ReadAt(buf, 6)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	_, err = g.ReadAt(buf, 20)
	require.Equal(t, io.EOF, err)

	fi, err := g.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(11), fi.Size())
	require.NoError(t, g.Close())

	_, err = fs.Open("dir/missing")
	require.True(t, os.IsNotExist(err))

	require.NoError(t, fs.Rename("dir/a", "dir/b"))
	names, err := fs.List("dir")
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, names)

	require.NoError(t, fs.Remove("dir/b"))
	_, err = fs.Stat("dir/b")
	require.True(t, os.IsNotExist(err))
}

func TestSyncingFS(t *testing.T) {
	fs := WithSyncingFS(NewMem(), SyncingFileOptions{BytesPerSync: 8})
	f, err := fs.Create("wal")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = f.Write([]byte("0123456789"))
		require.NoError(t, err)
	}
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	fi, err := fs.Stat("wal")
	require.NoError(t, err)
	require.Equal(t, int64(40), fi.Size())
}
