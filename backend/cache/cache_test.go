package cache_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	backendcache "github.com/fsspec/filesystem-spec/backend/cache"
	"github.com/fsspec/filesystem-spec/backend/memory"
	"github.com/fsspec/filesystem-spec/fs"
	instancecache "github.com/fsspec/filesystem-spec/fs/cache"
)

// newCacheFs builds a fresh cache Fs wrapping a fresh memory Fs, isolated
// per test via the process-wide instance cache reset.
func newCacheFs(t *testing.T, opts map[string]string) (fs.Fs, fs.Fs) {
	ctx := context.Background()
	instancecache.Clear()
	t.Cleanup(instancecache.Clear)

	inner, err := instancecache.GetFn(ctx, "memory", "/", map[string]string{}, false, memory.NewFs)
	require.NoError(t, err)

	merged := map[string]string{
		"remote":    "memory:///",
		"cache_dir": t.TempDir(),
	}
	for k, v := range opts {
		merged[k] = v
	}
	cf, err := backendcache.NewFs(ctx, "cache", "/", merged)
	require.NoError(t, err)
	return cf, inner
}

func TestNewFsRequiresRemoteOption(t *testing.T) {
	_, err := backendcache.NewFs(context.Background(), "cache", "/", map[string]string{})
	assert.True(t, fs.IsKind(err, fs.KindInvalidPath))
}

func TestWholeFileServesFromLocalCopyOnceFetched(t *testing.T) {
	ctx := context.Background()
	cf, inner := newCacheFs(t, map[string]string{"mode": string(backendcache.WholeFile)})
	require.NoError(t, inner.WriteFile(ctx, "/greet.txt", []byte("hello cache")))

	data, err := cf.ReadFile(ctx, "/greet.txt", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "hello cache", string(data))

	// never_check (the default) trusts the cached copy even after the
	// remote changes underneath it.
	require.NoError(t, inner.WriteFile(ctx, "/greet.txt", []byte("changed upstream")))
	data2, err := cf.ReadFile(ctx, "/greet.txt", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "hello cache", string(data2))
}

func TestWholeFileCheckOnOpenRefetchesOnChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	cf, inner := newCacheFs(t, map[string]string{
		"mode":      string(backendcache.WholeFile),
		"freshness": string(backendcache.CheckOnOpen),
	})
	require.NoError(t, inner.WriteFile(ctx, "/greet.txt", []byte("hello cache")))

	data, err := cf.ReadFile(ctx, "/greet.txt", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "hello cache", string(data))

	require.NoError(t, inner.WriteFile(ctx, "/greet.txt", []byte("changed upstream")))
	data2, err := cf.ReadFile(ctx, "/greet.txt", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "changed upstream", string(data2))
}

func TestSimpleModeNeverRefetchesAndKeepsNoManifest(t *testing.T) {
	ctx := context.Background()
	cf, inner := newCacheFs(t, map[string]string{"mode": string(backendcache.Simple)})
	require.NoError(t, inner.WriteFile(ctx, "/x.txt", []byte("v1")))

	data, err := cf.ReadFile(ctx, "/x.txt", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	require.NoError(t, inner.WriteFile(ctx, "/x.txt", []byte("v2")))
	data2, err := cf.ReadFile(ctx, "/x.txt", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data2))
}

func TestBlockSparseFaultsInOnlyRequestedRange(t *testing.T) {
	ctx := context.Background()
	cf, inner := newCacheFs(t, map[string]string{"mode": string(backendcache.BlockSparse)})

	payload := make([]byte, 10<<20) // 10MiB, spans multiple 4MiB blocks
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	require.NoError(t, inner.WriteFile(ctx, "/big.bin", payload))

	raw, err := cf.OpenRead(ctx, "/big.bin")
	require.NoError(t, err)
	defer raw.Close()

	size, ok := raw.Size(ctx)
	require.True(t, ok)
	assert.EqualValues(t, len(payload), size)

	got, err := raw.ReadRange(ctx, 5<<20, 1024)
	require.NoError(t, err)
	assert.Equal(t, payload[5<<20:5<<20+1024], got)

	got2, err := raw.ReadRange(ctx, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, payload[0:100], got2)
}

func TestWriteFileGoesThroughToInnerAndUpdatesLocalCache(t *testing.T) {
	ctx := context.Background()
	cf, inner := newCacheFs(t, map[string]string{"mode": string(backendcache.WholeFile)})

	require.NoError(t, cf.WriteFile(ctx, "/out.txt", []byte("written via cache")))

	innerData, err := inner.ReadFile(ctx, "/out.txt", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "written via cache", string(innerData))

	cachedData, err := cf.ReadFile(ctx, "/out.txt", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "written via cache", string(cachedData))
}

func TestListIsCachedUntilInvalidatedByWrite(t *testing.T) {
	ctx := context.Background()
	cf, inner := newCacheFs(t, map[string]string{"mode": string(backendcache.WholeFile)})
	require.NoError(t, inner.WriteFile(ctx, "/dir/a.txt", []byte("a")))

	entries, err := cf.List(ctx, "/dir")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// A write straight to the inner Fs, bypassing the wrapper, is invisible
	// until the wrapper's own listing cache expires or is invalidated.
	require.NoError(t, inner.WriteFile(ctx, "/dir/b.txt", []byte("b")))
	stale, err := cf.List(ctx, "/dir")
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	// A write through the wrapper invalidates its own listing cache.
	require.NoError(t, cf.WriteFile(ctx, "/dir/c.txt", []byte("c")))
	fresh, err := cf.List(ctx, "/dir")
	require.NoError(t, err)
	assert.Len(t, fresh, 3)
}

func TestRemoveFileForgetsLocalCacheCopy(t *testing.T) {
	ctx := context.Background()
	cf, inner := newCacheFs(t, map[string]string{"mode": string(backendcache.WholeFile)})
	require.NoError(t, inner.WriteFile(ctx, "/gone.txt", []byte("bye")))

	_, err := cf.ReadFile(ctx, "/gone.txt", 0, -1)
	require.NoError(t, err)

	require.NoError(t, cf.RemoveFile(ctx, "/gone.txt"))
	_, err = inner.Info(ctx, "/gone.txt")
	assert.True(t, fs.IsNotFound(err))

	require.NoError(t, inner.WriteFile(ctx, "/gone.txt", []byte("reborn")))
	data, err := cf.ReadFile(ctx, "/gone.txt", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "reborn", string(data))
}

func TestRegisteredInDefaultRegistry(t *testing.T) {
	info, err := fs.Get("cache")
	require.NoError(t, err)
	assert.Equal(t, "cache", info.Name)
}

func TestNewFsWritesManifestFileToCacheDir(t *testing.T) {
	ctx := context.Background()
	instancecache.Clear()
	t.Cleanup(instancecache.Clear)
	dir := t.TempDir()

	inner, err := instancecache.GetFn(ctx, "memory", "/", map[string]string{}, false, memory.NewFs)
	require.NoError(t, err)
	require.NoError(t, inner.WriteFile(ctx, "/p.txt", []byte("persisted")))

	opts := map[string]string{"remote": "memory:///", "cache_dir": dir}
	first, err := backendcache.NewFs(ctx, "cache", "/", opts)
	require.NoError(t, err)
	_, err = first.ReadFile(ctx, "/p.txt", 0, -1)
	require.NoError(t, err)

	manifestPath := dir + "/manifest.bolt"
	_, statErr := os.Stat(manifestPath)
	assert.NoError(t, statErr)
}
