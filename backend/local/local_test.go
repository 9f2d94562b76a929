package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsspec/filesystem-spec/fs"
)

func newTestFs(t *testing.T) *Fs {
	dir := t.TempDir()
	f, err := NewFs(context.Background(), "local", dir, nil)
	require.NoError(t, err)
	return f.(*Fs)
}

func TestWriteFileThenReadFileRoundTrip(t *testing.T) {
	f := newTestFs(t)
	ctx := context.Background()

	require.NoError(t, f.WriteFile(ctx, "/a.txt", []byte("hello world")))
	got, err := f.ReadFile(ctx, "/a.txt", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)
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

func TestInfoNotFound(t *testing.T) {
	f := newTestFs(t)
	_, err := f.Info(context.Background(), "/missing.txt")
	assert.True(t, fs.IsNotFound(err))
}

func TestListSortedDirectChildren(t *testing.T) {
	f := newTestFs(t)
	ctx := context.Background()
	require.NoError(t, f.WriteFile(ctx, "/b.txt", []byte("b")))
	require.NoError(t, f.WriteFile(ctx, "/a.txt", []byte("a")))
	require.NoError(t, f.Mkdir(ctx, "/sub", false))

	entries, err := f.List(ctx, "/")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Base())
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "sub"}, names)
}

func TestMkdirWithoutParentsFailsOnMissingParent(t *testing.T) {
	f := newTestFs(t)
	err := f.Mkdir(context.Background(), "/a/b", false)
	assert.True(t, fs.IsKind(err, fs.KindParentMissing))
}

func TestMkdirRmdir(t *testing.T) {
	f := newTestFs(t)
	ctx := context.Background()
	require.NoError(t, f.Mkdir(ctx, "/dir", false))

	e, err := f.Info(ctx, "/dir")
	require.NoError(t, err)
	assert.True(t, e.IsDir())

	require.NoError(t, f.Rmdir(ctx, "/dir"))
	_, err = f.Info(ctx, "/dir")
	assert.True(t, fs.IsNotFound(err))
}

func TestRemoveFile(t *testing.T) {
	f := newTestFs(t)
	ctx := context.Background()
	require.NoError(t, f.WriteFile(ctx, "/a.txt", []byte("x")))
	require.NoError(t, f.RemoveFile(ctx, "/a.txt"))

	_, err := f.Info(ctx, "/a.txt")
	assert.True(t, fs.IsNotFound(err))
}

func TestCopyFile(t *testing.T) {
	f := newTestFs(t)
	ctx := context.Background()
	require.NoError(t, f.WriteFile(ctx, "/src.txt", []byte("hi")))
	require.NoError(t, f.CopyFile(ctx, "/src.txt", "/dst.txt"))

	got, err := f.ReadFile(ctx, "/dst.txt", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got)
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
	info, err := fs.Get("local")
	require.NoError(t, err)
	assert.Equal(t, "local", info.Name)
}
