package readbuffer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsspec/filesystem-spec/fs/readbuffer"
)

// fakeRaw is an in-memory fs.RawReader recording every ReadRange call so
// tests can assert on how many backend fetches a strategy actually issues.
type fakeRaw struct {
	data    []byte
	fetches [][2]int64
}

func (f *fakeRaw) Size(ctx context.Context) (int64, bool) { return int64(len(f.data)), true }

func (f *fakeRaw) ReadRange(ctx context.Context, start, length int64) ([]byte, error) {
	f.fetches = append(f.fetches, [2]int64{start, length})
	if start >= int64(len(f.data)) {
		return nil, nil
	}
	end := start + length
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}
	return f.data[start:end], nil
}

func (f *fakeRaw) Close() error { return nil }

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestPassthroughForwardsEveryFetch(t *testing.T) {
	raw := &fakeRaw{data: payload(100)}
	s := readbuffer.New(readbuffer.None, raw, readbuffer.Options{})

	got, err := s.Fetch(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, raw.data[10:15], got)
	assert.Len(t, raw.fetches, 1)
}

func TestReadAheadServesWithinWindowWithoutRefetch(t *testing.T) {
	raw := &fakeRaw{data: payload(100)}
	s := readbuffer.New(readbuffer.ReadAhead, raw, readbuffer.Options{BlockSize: 32})

	_, err := s.Fetch(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, raw.fetches, 1)

	got, err := s.Fetch(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Equal(t, raw.data[5:15], got)
	assert.Len(t, raw.fetches, 1, "a request within the existing window must not refetch")
}

func TestReadAheadRefetchesOutsideWindow(t *testing.T) {
	raw := &fakeRaw{data: payload(100)}
	s := readbuffer.New(readbuffer.ReadAhead, raw, readbuffer.Options{BlockSize: 16})

	_, err := s.Fetch(context.Background(), 0, 8)
	require.NoError(t, err)
	_, err = s.Fetch(context.Background(), 90, 8)
	require.NoError(t, err)
	assert.Len(t, raw.fetches, 2)
}

func TestBytesAccumulatorGrowsOnContiguousAccess(t *testing.T) {
	raw := &fakeRaw{data: payload(100)}
	s := readbuffer.New(readbuffer.Bytes, raw, readbuffer.Options{})

	got, err := s.Fetch(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, raw.data[0:10], got)

	got, err = s.Fetch(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Equal(t, raw.data[5:15], got)
}

func TestBlockStrategyFetchesAcrossBlocksOnceAndCaches(t *testing.T) {
	raw := &fakeRaw{data: payload(64)}
	s := readbuffer.New(readbuffer.Block, raw, readbuffer.Options{BlockSize: 16})

	got, err := s.Fetch(context.Background(), 10, 20)
	require.NoError(t, err)
	assert.Equal(t, raw.data[10:30], got)
	firstFetchCount := len(raw.fetches)
	assert.True(t, firstFetchCount >= 2)

	got, err = s.Fetch(context.Background(), 16, 16)
	require.NoError(t, err)
	assert.Equal(t, raw.data[16:32], got)
	assert.Equal(t, firstFetchCount, len(raw.fetches), "blocks already cached must not be refetched")
}

func TestBlockStrategyShortReadAtEOF(t *testing.T) {
	raw := &fakeRaw{data: payload(10)}
	s := readbuffer.New(readbuffer.Block, raw, readbuffer.Options{BlockSize: 16})

	got, err := s.Fetch(context.Background(), 0, 100)
	require.NoError(t, err)
	assert.Equal(t, raw.data, got)
}

func TestFirstChunkCachesOnlyBlockZero(t *testing.T) {
	raw := &fakeRaw{data: payload(64)}
	s := readbuffer.New(readbuffer.FirstChunk, raw, readbuffer.Options{BlockSize: 16})

	_, err := s.Fetch(context.Background(), 0, 8)
	require.NoError(t, err)
	_, err = s.Fetch(context.Background(), 4, 4)
	require.NoError(t, err)
	assert.Len(t, raw.fetches, 1, "second request within block 0 must reuse the cached block")

	_, err = s.Fetch(context.Background(), 20, 4)
	require.NoError(t, err)
	assert.Len(t, raw.fetches, 2, "requests outside block 0 always hit the backend")
}

func TestNegativeOffsetResolvesFromEOF(t *testing.T) {
	raw := &fakeRaw{data: payload(100)}
	s := readbuffer.New(readbuffer.None, raw, readbuffer.Options{})

	got, err := s.Fetch(context.Background(), -10, 10)
	require.NoError(t, err)
	assert.Equal(t, raw.data[90:100], got)
}

func TestEmptyRangeMakesNoBackendCall(t *testing.T) {
	raw := &fakeRaw{data: payload(100)}
	s := readbuffer.New(readbuffer.ReadAhead, raw, readbuffer.Options{})

	got, err := s.Fetch(context.Background(), 5, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, raw.fetches)
}
