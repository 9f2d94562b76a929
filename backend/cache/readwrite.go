package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fsspec/filesystem-spec/fs"
	"github.com/fsspec/filesystem-spec/fs/fspath"
)

// manifestRecord is the per-path metadata persisted for WholeFile and
// BlockSparse mode, used to decide staleness per Freshness.
type manifestRecord struct {
	Modified int64  `json:"modified"`
	Checksum string `json:"checksum"`
	CachedAt int64  `json:"cached_at"`
}

func (f *Fs) recordManifest(path string, entry *fs.Entry) {
	if f.manifest == nil {
		return
	}
	rec := manifestRecord{CachedAt: time.Now().Unix(), Checksum: entry.Checksum}
	if entry.Modified != nil {
		rec.Modified = *entry.Modified
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = f.manifest.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("entries")).Put([]byte(path), data)
	})
}

func (f *Fs) readManifest(path string) (manifestRecord, bool) {
	var rec manifestRecord
	var found bool
	if f.manifest == nil {
		return rec, false
	}
	_ = f.manifest.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte("entries")).Get([]byte(path))
		if v == nil {
			return nil
		}
		found = json.Unmarshal(v, &rec) == nil
		return nil
	})
	return rec, found
}

// isStale applies Freshness to decide whether a WholeFile cached copy
// must be refetched before being served.
func (f *Fs) isStale(path string, entry *fs.Entry) bool {
	rec, ok := f.readManifest(path)
	if !ok {
		return true
	}
	switch f.freshness {
	case CheckOnOpen:
		if entry.Modified != nil && rec.Modified != *entry.Modified {
			return true
		}
		if entry.Checksum != "" && rec.Checksum != entry.Checksum {
			return true
		}
		return false
	case ExpireAfterSeconds:
		return time.Now().Unix()-rec.CachedAt >= f.expireSeconds
	case NeverCheck:
		fallthrough
	default:
		return false
	}
}

func blockKey(path string, idx int64) []byte {
	return []byte(fmt.Sprintf("%s#%d", path, idx))
}

func (f *Fs) blockPresent(path string, idx int64) bool {
	if f.manifest == nil {
		return false
	}
	var present bool
	_ = f.manifest.View(func(tx *bolt.Tx) error {
		present = tx.Bucket([]byte("blocks")).Get(blockKey(path, idx)) != nil
		return nil
	})
	return present
}

func (f *Fs) markBlockPresent(path string, idx int64) {
	if f.manifest == nil {
		return
	}
	_ = f.manifest.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("blocks")).Put(blockKey(path, idx), []byte{1})
	})
}

// markAllBlocksPresent records every block of a size-byte object as
// cached, used right after a write commits a fresh local copy so a
// subsequent BlockSparse read doesn't refetch data it already has.
func (f *Fs) markAllBlocksPresent(path string, size int64) {
	if f.manifest == nil || size <= 0 {
		return
	}
	lastIdx := (size - 1) / blockSize
	for idx := int64(0); idx <= lastIdx; idx++ {
		f.markBlockPresent(path, idx)
	}
}

func deleteBlockPresence(tx *bolt.Tx, path string) error {
	b := tx.Bucket([]byte("blocks"))
	if b == nil {
		return nil
	}
	prefix := []byte(path + "#")
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// ensureWholeFileCached fetches path's entire content from the inner Fs
// into local when it isn't already cached, or when forceRefetch is set
// (a stale WholeFile copy). Simple mode never sets forceRefetch: it
// fetches once, on the first open that finds no local copy.
func (f *Fs) ensureWholeFileCached(ctx context.Context, path, inner, local string, entry *fs.Entry, forceRefetch bool) error {
	if !forceRefetch {
		if _, err := os.Stat(local); err == nil {
			return nil
		}
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return fs.NewError(fs.KindCancelled, "cache_fetch", path, err)
	}
	data, err := f.inner.ReadFile(ctx, inner, 0, -1)
	if err != nil {
		return err
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return fs.NewError(fs.KindBackendError, "cache_fetch", path, err)
	}
	f.recordManifest(path, entry)
	return nil
}

// ensureSparseFile creates local as a sparse file the size of the remote
// object if it doesn't already exist, ready for faultInRange to fill in.
func (f *Fs) ensureSparseFile(path, local string, size int64) error {
	if _, err := os.Stat(local); err == nil {
		return nil
	}
	fh, err := os.Create(local)
	if err != nil {
		return fs.NewError(fs.KindBackendError, "cache_fetch", path, err)
	}
	defer fh.Close()
	if size > 0 {
		if err := fh.Truncate(size); err != nil {
			return fs.NewError(fs.KindBackendError, "cache_fetch", path, err)
		}
	}
	return nil
}

// faultInRange fetches every block of local overlapping [start, start+length)
// that isn't already marked present, writing each into its offset.
func (f *Fs) faultInRange(ctx context.Context, path, inner, local string, start, length, size int64) error {
	if length <= 0 {
		return nil
	}
	firstIdx := start / blockSize
	lastIdx := (start + length - 1) / blockSize
	for idx := firstIdx; idx <= lastIdx; idx++ {
		if f.blockPresent(path, idx) {
			continue
		}
		blockStart := idx * blockSize
		if blockStart >= size {
			break
		}
		blockEnd := blockStart + blockSize
		if blockEnd > size {
			blockEnd = size
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return fs.NewError(fs.KindCancelled, "cache_fetch", path, err)
		}
		data, err := f.inner.ReadFile(ctx, inner, blockStart, blockEnd)
		if err != nil {
			return err
		}
		fh, err := os.OpenFile(local, os.O_WRONLY, 0o644)
		if err != nil {
			return fs.NewError(fs.KindBackendError, "cache_fetch", path, err)
		}
		_, werr := fh.WriteAt(data, blockStart)
		_ = fh.Close()
		if werr != nil {
			return fs.NewError(fs.KindBackendError, "cache_fetch", path, werr)
		}
		f.markBlockPresent(path, idx)
	}
	return nil
}

func (f *Fs) OpenRead(ctx context.Context, path string) (fs.RawReader, error) {
	inner := f.innerPath(path)
	entry, err := f.inner.Info(ctx, inner)
	if err != nil {
		return nil, err
	}
	local := f.localCachePath(path)

	switch f.mode {
	case Simple:
		if err := f.ensureWholeFileCached(ctx, path, inner, local, entry, false); err != nil {
			return nil, err
		}
	case BlockSparse:
		if err := f.ensureSparseFile(path, local, entry.Size); err != nil {
			return nil, err
		}
	default: // WholeFile
		if err := f.ensureWholeFileCached(ctx, path, inner, local, entry, f.isStale(path, entry)); err != nil {
			return nil, err
		}
	}

	fh, err := os.Open(local)
	if err != nil {
		return nil, fs.NewError(fs.KindBackendError, "open_read", path, err)
	}
	return &cachingReader{
		f: f, path: path, innerPath: inner, fh: fh,
		size: entry.Size, sizeKnown: entry.Size >= 0,
	}, nil
}

type cachingReader struct {
	f         *Fs
	path      string
	innerPath string
	fh        *os.File
	size      int64
	sizeKnown bool
}

func (r *cachingReader) Size(ctx context.Context) (int64, bool) { return r.size, r.sizeKnown }

func (r *cachingReader) ReadRange(ctx context.Context, start, length int64) ([]byte, error) {
	if r.f.mode == BlockSparse {
		if err := r.f.faultInRange(ctx, r.path, r.innerPath, r.fh.Name(), start, length, r.size); err != nil {
			return nil, err
		}
	}
	buf := make([]byte, length)
	n, err := r.fh.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return nil, fs.NewError(fs.KindBackendError, "read_range", r.path, err)
	}
	return buf[:n], nil
}

func (r *cachingReader) Close() error { return r.fh.Close() }

// cachingWriter writes through to both a local temp file and the inner
// Fs's own RawWriter, committing the local copy into the cache only once
// the inner upload succeeds.
type cachingWriter struct {
	f       *Fs
	path    string
	inner   string
	local   string
	tmp     *os.File
	innerW  fs.RawWriter
	handle  fs.UploadHandle
	started bool
}

func (f *Fs) OpenWrite(ctx context.Context, path string) (fs.RawWriter, error) {
	inner := f.innerPath(path)
	innerW, err := f.inner.OpenWrite(ctx, inner)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(f.cacheDir, ".write-*")
	if err != nil {
		return nil, fs.NewError(fs.KindBackendError, "open_write", path, err)
	}
	return &cachingWriter{
		f: f, path: path, inner: inner, local: f.localCachePath(path),
		tmp: tmp, innerW: innerW,
	}, nil
}

func (w *cachingWriter) InitiateUpload(ctx context.Context) (fs.UploadHandle, error) {
	h, err := w.innerW.InitiateUpload(ctx)
	if err != nil {
		return nil, err
	}
	w.handle = h
	w.started = true
	return h, nil
}

func (w *cachingWriter) UploadChunk(ctx context.Context, handle fs.UploadHandle, index int, data []byte, final bool) error {
	if _, err := w.tmp.Write(data); err != nil {
		return err
	}
	if err := w.innerW.UploadChunk(ctx, w.handle, index, data, final); err != nil {
		return err
	}
	if final {
		return w.commit(ctx)
	}
	return nil
}

func (w *cachingWriter) CancelUpload(ctx context.Context, handle fs.UploadHandle) error {
	name := w.tmp.Name()
	_ = w.tmp.Close()
	_ = os.Remove(name)
	if w.started {
		return w.innerW.CancelUpload(ctx, w.handle)
	}
	return nil
}

func (w *cachingWriter) PipeFile(ctx context.Context, data []byte) error {
	if _, err := w.tmp.Write(data); err != nil {
		return err
	}
	if err := w.innerW.PipeFile(ctx, data); err != nil {
		return err
	}
	return w.commit(ctx)
}

func (w *cachingWriter) commit(ctx context.Context) error {
	if err := w.tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(w.tmp.Name(), w.local); err != nil {
		return fs.NewError(fs.KindBackendError, "cache_commit", w.path, err)
	}
	w.f.listings.Invalidate(fspath.Dir(w.path))
	if w.f.manifest != nil {
		if entry, err := w.f.inner.Info(ctx, w.inner); err == nil {
			w.f.recordManifest(w.path, entry)
			w.f.markAllBlocksPresent(w.path, entry.Size)
		}
	}
	return nil
}

var _ fs.RawReader = (*cachingReader)(nil)
var _ fs.RawWriter = (*cachingWriter)(nil)
