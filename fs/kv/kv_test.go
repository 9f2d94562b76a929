package kv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memfs "github.com/fsspec/filesystem-spec/backend/memory"
	"github.com/fsspec/filesystem-spec/fs"
	"github.com/fsspec/filesystem-spec/fs/kv"
)

func newMapping(t *testing.T) (*kv.Mapping, context.Context) {
	ctx := context.Background()
	f, err := memfs.NewFs(ctx, "memory", "/", nil)
	require.NoError(t, err)
	return kv.New(f, "/store"), ctx
}

func TestSetThenGetRoundTrip(t *testing.T) {
	m, ctx := newMapping(t)
	require.NoError(t, m.Set(ctx, "a", []byte("1")))

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)
}

func TestGetMissingKeyFails(t *testing.T) {
	m, ctx := newMapping(t)
	_, err := m.Get(ctx, "missing")
	assert.True(t, fs.IsNotFound(err))
}

func TestDeleteRemovesKey(t *testing.T) {
	m, ctx := newMapping(t)
	require.NoError(t, m.Set(ctx, "a", []byte("1")))
	require.NoError(t, m.Delete(ctx, "a"))

	_, err := m.Get(ctx, "a")
	assert.True(t, fs.IsNotFound(err))
}

func TestDeleteMissingKeyFails(t *testing.T) {
	m, ctx := newMapping(t)
	err := m.Delete(ctx, "missing")
	assert.True(t, fs.IsNotFound(err))
}

func TestKeysAndLenReflectNestedPaths(t *testing.T) {
	m, ctx := newMapping(t)
	require.NoError(t, m.Set(ctx, "a", []byte("1")))
	require.NoError(t, m.Set(ctx, "dir/b", []byte("2")))

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "dir/b"}, keys)

	n, err := m.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
