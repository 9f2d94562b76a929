// Package kv implements the key-value mapping view of spec.md section
// 4.11: a mapping over the subtree at a root, with relative paths as keys
// and file contents as values. Grounded on the teacher's own use of
// fs.Fs as a flat key/value store in fs/cache's persisted-token layer and
// in backend/cache's manifest bookkeeping, generalized here into a
// reusable standalone view rather than a cache-internal detail.
package kv

import (
	"context"
	"strings"

	"github.com/fsspec/filesystem-spec/fs"
	"github.com/fsspec/filesystem-spec/fs/fspath"
	"github.com/fsspec/filesystem-spec/fs/walk"
)

// ErrKeyMissing is returned by Get and Delete for an absent key.
var ErrKeyMissing = fs.NewError(fs.KindNotFound, "kv", "", nil)

// Mapping is a key-value view over the subtree rooted at Root on F. Keys
// are "/"-free-of-root relative paths using "/" separators.
type Mapping struct {
	F    fs.Fs
	Root string
}

// New returns a Mapping rooted at root on f.
func New(f fs.Fs, root string) *Mapping {
	clean, _ := fspath.Normalize(root)
	return &Mapping{F: f, Root: clean}
}

func (m *Mapping) path(key string) string {
	return fspath.Join(m.Root, key)
}

func (m *Mapping) key(path string) string {
	rel := strings.TrimPrefix(path, m.Root)
	return strings.TrimPrefix(rel, "/")
}

// Get looks up key, returning ErrKeyMissing if it is absent.
func (m *Mapping) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := m.F.ReadFile(ctx, m.path(key), 0, -1)
	if err != nil {
		if fs.IsNotFound(err) {
			return nil, ErrKeyMissing
		}
		return nil, err
	}
	return data, nil
}

// Set assigns value to key, creating or replacing it.
func (m *Mapping) Set(ctx context.Context, key string, value []byte) error {
	return m.F.WriteFile(ctx, m.path(key), value)
}

// Delete removes key, returning ErrKeyMissing if it was never present.
func (m *Mapping) Delete(ctx context.Context, key string) error {
	err := m.F.RemoveFile(ctx, m.path(key))
	if err != nil && fs.IsNotFound(err) {
		return ErrKeyMissing
	}
	return err
}

// Keys eagerly lists every key under Root, as a point-in-time snapshot
// (spec.md section 4.11: "iteration is a snapshot; mutation during
// iteration is undefined").
func (m *Mapping) Keys(ctx context.Context) ([]string, error) {
	files, err := walk.Find(ctx, m.F, m.Root, 0)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = m.key(f.Name)
	}
	return keys, nil
}

// Len returns the number of keys currently present.
func (m *Mapping) Len(ctx context.Context) (int, error) {
	keys, err := m.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
