package fspath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingle(t *testing.T) {
	c, err := Parse("s3://bucket/key", nil)
	require.NoError(t, err)
	require.Len(t, c.Segments, 1)
	assert.Equal(t, "s3", c.Segments[0].Protocol)
	assert.Equal(t, "bucket/key", c.Segments[0].Path)
	assert.Equal(t, "s3://bucket/key", c.Target)
}

func TestParseBarePath(t *testing.T) {
	c, err := Parse("/tmp/data.txt", nil)
	require.NoError(t, err)
	require.Len(t, c.Segments, 1)
	assert.Equal(t, "", c.Segments[0].Protocol)
	assert.Equal(t, "/tmp/data.txt", c.Segments[0].Path)
	assert.Equal(t, "/tmp/data.txt", c.Target)
}

func TestParseChain(t *testing.T) {
	kwargs := map[string]map[string]string{
		"cache": {"cache_type": "block"},
		"s3":    {"anon": "true"},
	}
	c, err := Parse("cache::zip://*.csv::s3://bkt/a.zip", kwargs)
	require.NoError(t, err)
	require.Len(t, c.Segments, 3)

	assert.Equal(t, "cache", c.Segments[0].Protocol)
	assert.Equal(t, "", c.Segments[0].Path)
	assert.Equal(t, "block", c.Segments[0].Kwargs["cache_type"])

	assert.Equal(t, "zip", c.Segments[1].Protocol)
	assert.Equal(t, "*.csv", c.Segments[1].Path)

	assert.Equal(t, "s3", c.Segments[2].Protocol)
	assert.Equal(t, "bkt/a.zip", c.Segments[2].Path)
	assert.Equal(t, "true", c.Segments[2].Kwargs["anon"])

	assert.Equal(t, "s3://bkt/a.zip", c.Target)
}

func TestParseChainRepeatedProtocol(t *testing.T) {
	kwargs := map[string]map[string]string{
		"cache":   {"cache_type": "whole"},
		"cache#1": {"cache_type": "simple"},
	}
	c, err := Parse("cache://a::cache://b", kwargs)
	require.NoError(t, err)
	require.Len(t, c.Segments, 2)
	assert.Equal(t, "whole", c.Segments[0].Kwargs["cache_type"])
	assert.Equal(t, "simple", c.Segments[1].Kwargs["cache_type"])
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse("", nil)
	assert.Error(t, err)
}

func TestStripUnstripProtocolIdempotent(t *testing.T) {
	for _, p := range []string{"bucket/key", "s3://bucket/key", "s3://s3://bucket/key"} {
		once := StripProtocol("s3", p)
		twice := StripProtocol("s3", once)
		assert.Equal(t, once, twice, "strip_protocol must be idempotent for %q", p)
	}
}

func TestUnstripProtocol(t *testing.T) {
	assert.Equal(t, "s3://bucket/key", UnstripProtocol("s3", "bucket/key"))
	assert.Equal(t, "s3://bucket/key", UnstripProtocol("s3", "s3://bucket/key"))
}

func TestNormalize(t *testing.T) {
	for _, test := range []struct {
		in           string
		wantClean    string
		wantTrailing bool
	}{
		{"/a/b/c", "/a/b/c", false},
		{"/a/b/c/", "/a/b/c", true},
		{"/a//b/./c", "/a/b/c", false},
		{"/a/b/../c", "/a/c", false},
		{"", "/", false},
		{"/", "/", false},
		{"a/b", "a/b", false},
	} {
		clean, trailing := Normalize(test.in)
		assert.Equal(t, test.wantClean, clean, test.in)
		assert.Equal(t, test.wantTrailing, trailing, test.in)
	}
}

func TestDirBase(t *testing.T) {
	assert.Equal(t, "/a/b", Dir("/a/b/c"))
	assert.Equal(t, "c", Base("/a/b/c"))
	assert.Equal(t, "/", Dir("/a"))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "/a/b/c", Join("/a", "b", "c/"))
}
