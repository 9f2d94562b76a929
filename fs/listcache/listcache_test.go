package listcache

import (
	"testing"
	"time"

	"github.com/fsspec/filesystem-spec/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(names ...string) []*fs.Entry {
	out := make([]*fs.Entry, len(names))
	for i, n := range names {
		out[i] = &fs.Entry{Name: n, Type: fs.TypeFile}
	}
	return out
}

func TestGetPut(t *testing.T) {
	c := New(0, 0)
	_, ok := c.Get("/a")
	assert.False(t, ok)

	c.Put("/a", entries("/a/1", "/a/2"))
	got, ok := c.Get("/a")
	require.True(t, ok)
	assert.Len(t, got, 2)
}

func TestExpiry(t *testing.T) {
	c := New(20*time.Millisecond, 0)
	c.Put("/a", entries("/a/1"))
	_, ok := c.Get("/a")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("/a")
	assert.False(t, ok)
}

func TestMaxPathsEvictsLeastRecentlyInserted(t *testing.T) {
	c := New(0, 2)
	c.Put("/a", entries("x"))
	c.Put("/b", entries("x"))
	c.Put("/c", entries("x"))

	_, ok := c.Get("/a")
	assert.False(t, ok, "/a should have been evicted")
	_, ok = c.Get("/b")
	assert.True(t, ok)
	_, ok = c.Get("/c")
	assert.True(t, ok)
}

func TestInvalidateRemovesAncestors(t *testing.T) {
	c := New(0, 0)
	c.Put("/", entries("a"))
	c.Put("/a", entries("a/b"))
	c.Put("/a/b", entries("a/b/c"))

	c.Invalidate("/a/b/c")

	_, ok := c.Get("/")
	assert.False(t, ok)
	_, ok = c.Get("/a")
	assert.False(t, ok)
	_, ok = c.Get("/a/b")
	assert.False(t, ok)
}
