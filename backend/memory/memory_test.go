package memory

import (
	"context"
	"testing"

	"github.com/fsspec/filesystem-spec/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFs(t *testing.T) *Fs {
	f, err := NewFs(context.Background(), "memory", "/", nil)
	require.NoError(t, err)
	return f.(*Fs)
}

func TestWriteFileThenReadFileRoundTrip(t *testing.T) {
	f := newTestFs(t)
	ctx := context.Background()

	for _, payload := range [][]byte{[]byte("hello world"), {}} {
		require.NoError(t, f.WriteFile(ctx, "/a.txt", payload))
		got, err := f.ReadFile(ctx, "/a.txt", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}
}

func TestInfoSizeMatchesReadFile(t *testing.T) {
	f := newTestFs(t)
	ctx := context.Background()
	require.NoError(t, f.WriteFile(ctx, "/a.txt", []byte("0123456789")))

	e, err := f.Info(ctx, "/a.txt")
	require.NoError(t, err)

	data, err := f.ReadFile(ctx, "/a.txt", 0, -1)
	require.NoError(t, err)
	assert.EqualValues(t, e.Size, len(data))
}

func TestReadFileRangeAndNegativeOffset(t *testing.T) {
	f := newTestFs(t)
	ctx := context.Background()
	require.NoError(t, f.WriteFile(ctx, "/a.txt", []byte("0123456789")))

	got, err := f.ReadFile(ctx, "/a.txt", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("01234"), got)

	got, err = f.ReadFile(ctx, "/a.txt", -3, -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("789"), got)
}

func TestReadFileShortReadPastEOFIsNotAnError(t *testing.T) {
	f := newTestFs(t)
	ctx := context.Background()
	require.NoError(t, f.WriteFile(ctx, "/a.txt", []byte("01234")))

	got, err := f.ReadFile(ctx, "/a.txt", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, []byte("01234"), got)
}

func TestZeroByteFile(t *testing.T) {
	f := newTestFs(t)
	ctx := context.Background()
	require.NoError(t, f.WriteFile(ctx, "/empty.txt", []byte{}))

	e, err := f.Info(ctx, "/empty.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 0, e.Size)

	data, err := f.ReadFile(ctx, "/empty.txt", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestListDirectChildrenOnly(t *testing.T) {
	f := newTestFs(t)
	ctx := context.Background()
	require.NoError(t, f.WriteFile(ctx, "/a/b.txt", []byte("x")))
	require.NoError(t, f.WriteFile(ctx, "/a/c/d.txt", []byte("x")))

	entries, err := f.List(ctx, "/a")
	require.NoError(t, err)
	names := map[string]fs.EntryType{}
	for _, e := range entries {
		names[e.Name] = e.Type
	}
	assert.Equal(t, fs.TypeFile, names["/a/b.txt"])
	assert.Equal(t, fs.TypeDirectory, names["/a/c"])
	_, hasGrandchild := names["/a/c/d.txt"]
	assert.False(t, hasGrandchild, "List must not descend past direct children")
}

func TestMkdirRmdir(t *testing.T) {
	f := newTestFs(t)
	ctx := context.Background()

	err := f.Mkdir(ctx, "/a/b", false)
	assert.Error(t, err, "missing parent without createParents should fail")

	require.NoError(t, f.Mkdir(ctx, "/a", false))
	require.NoError(t, f.Mkdir(ctx, "/a/b", false))

	e, err := f.Info(ctx, "/a/b")
	require.NoError(t, err)
	assert.True(t, e.IsDir())

	require.NoError(t, f.Rmdir(ctx, "/a/b"))
	_, err = f.Info(ctx, "/a/b")
	assert.True(t, fs.IsNotFound(err))
}

func TestOpenWriteBlockAccumulationThenOpenRead(t *testing.T) {
	f := newTestFs(t)
	ctx := context.Background()

	w, err := f.OpenWrite(ctx, "/big.bin")
	require.NoError(t, err)
	handle, err := w.InitiateUpload(ctx)
	require.NoError(t, err)
	require.NoError(t, w.UploadChunk(ctx, handle, 0, []byte("abc"), false))
	require.NoError(t, w.UploadChunk(ctx, handle, 1, []byte("def"), true))

	r, err := f.OpenRead(ctx, "/big.bin")
	require.NoError(t, err)
	size, ok := r.Size(ctx)
	require.True(t, ok)
	assert.EqualValues(t, 6, size)

	data, err := r.ReadRange(ctx, 0, size)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), data)
}

func TestRegisteredInDefaultRegistry(t *testing.T) {
	info, err := fs.Get("memory")
	require.NoError(t, err)
	assert.Equal(t, "memory", info.Name)
}
