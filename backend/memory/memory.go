// Package memory provides an in-memory Fs backend: the reference/testing
// substrate used throughout this module's own test suites, grounded on
// the teacher's backend/memory (an in-process object store registered the
// same way as any network backend).
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsspec/filesystem-spec/fs"
	"github.com/fsspec/filesystem-spec/fs/fspath"
)

func init() {
	fs.MustRegister(&fs.RegInfo{
		Name:        "memory",
		Description: "In-memory filesystem",
		NewFs:       NewFs,
	})
}

type fileData struct {
	data     []byte
	modTime  int64
	checksum string
}

// Fs is an in-memory filesystem. Every instance with the same root shares
// no state with another instance unless they are the same *Fs: the
// backing store lives on the struct, not in package-level state (unlike
// the teacher's deliberately process-persistent backend/memory), so that
// tests get an isolated store per NewFs call.
type Fs struct {
	name string
	root string

	mu    sync.RWMutex
	files map[string]*fileData
	dirs  map[string]bool

	features *fs.Features
}

// NewFs constructs a memory Fs. opts is unused; every instance starts empty.
func NewFs(ctx context.Context, name, root string, opts map[string]string) (fs.Fs, error) {
	clean, _ := fspath.Normalize(root)
	if clean == "" {
		clean = "/"
	}
	f := &Fs{
		name:  name,
		root:  clean,
		files: make(map[string]*fileData),
		dirs:  map[string]bool{"/": true},
		features: &fs.Features{
			SupportsEmptyDirectories: true,
		},
	}
	return f, nil
}

func (f *Fs) Name() string           { return f.name }
func (f *Fs) Root() string           { return f.root }
func (f *Fs) String() string         { return fmt.Sprintf("memory root '%s'", f.root) }
func (f *Fs) Features() *fs.Features { return f.features }

func clean(path string) string {
	c, _ := fspath.Normalize(path)
	return c
}

func (f *Fs) Info(ctx context.Context, path string) (*fs.Entry, error) {
	p := clean(path)
	f.mu.RLock()
	defer f.mu.RUnlock()
	if fd, ok := f.files[p]; ok {
		return fileEntry(p, fd), nil
	}
	if f.dirs[p] || f.hasChildren(p) {
		return &fs.Entry{Name: p, Type: fs.TypeDirectory}, nil
	}
	return nil, fs.NewError(fs.KindNotFound, "info", p, fmt.Errorf("no such file or directory"))
}

func fileEntry(p string, fd *fileData) *fs.Entry {
	modified := fd.modTime
	return &fs.Entry{
		Name:     p,
		Type:     fs.TypeFile,
		Size:     int64(len(fd.data)),
		Modified: &modified,
		Checksum: fd.checksum,
	}
}

// hasChildren reports whether any stored file or explicit directory lies
// strictly under dir, which lets an object-store-style backend answer
// isdir for an implicit prefix per spec.md section 3.
func (f *Fs) hasChildren(dir string) bool {
	prefix := dir
	if prefix != "/" {
		prefix += "/"
	} else {
		prefix = "/"
	}
	for p := range f.files {
		if p != dir && strings.HasPrefix(p, prefix) {
			return true
		}
	}
	for p := range f.dirs {
		if p != dir && p != "/" && strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (f *Fs) List(ctx context.Context, path string) ([]*fs.Entry, error) {
	p := clean(path)
	f.mu.RLock()
	defer f.mu.RUnlock()

	if _, ok := f.files[p]; ok {
		return nil, fs.NewError(fs.KindInvalidPath, "list", p, fmt.Errorf("not a directory"))
	}
	if !f.dirs[p] && !f.hasChildren(p) && p != "/" {
		return nil, fs.NewError(fs.KindNotFound, "list", p, fmt.Errorf("no such directory"))
	}

	children := make(map[string]*fs.Entry)
	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	addChild := func(full string, mk func() *fs.Entry) {
		rest := strings.TrimPrefix(full, prefix)
		if rest == "" || rest == full {
			return
		}
		if idx := strings.Index(rest, "/"); idx >= 0 {
			name := prefix + rest[:idx]
			if _, ok := children[name]; !ok {
				children[name] = &fs.Entry{Name: name, Type: fs.TypeDirectory}
			}
			return
		}
		name := prefix + rest
		children[name] = mk()
	}
	for fp, fd := range f.files {
		addChild(fp, func() *fs.Entry { return fileEntry(fp, fd) })
	}
	for dp := range f.dirs {
		if dp == p {
			continue
		}
		addChild(dp, func() *fs.Entry { return &fs.Entry{Name: dp, Type: fs.TypeDirectory} })
	}

	out := make([]*fs.Entry, 0, len(children))
	for _, e := range children {
		out = append(out, e)
	}
	return out, nil
}

func (f *Fs) ReadFile(ctx context.Context, path string, start, end int64) ([]byte, error) {
	p := clean(path)
	f.mu.RLock()
	fd, ok := f.files[p]
	f.mu.RUnlock()
	if !ok {
		return nil, fs.NewError(fs.KindNotFound, "read_file", p, fmt.Errorf("no such file"))
	}
	size := int64(len(fd.data))
	s, e, err := resolveRange(start, end, size)
	if err != nil {
		return nil, fs.NewError(fs.KindInvalidRange, "read_file", p, err)
	}
	out := make([]byte, e-s)
	copy(out, fd.data[s:e])
	return out, nil
}

// resolveRange translates spec.md's (start, end) convention -- negative
// indices from EOF, end == -1 meaning EOF -- into absolute offsets,
// clamped to a short read rather than an error (spec.md section 4.5).
// A negative start that reaches before the beginning of the file is an
// error.
func resolveRange(start, end, size int64) (s, e int64, err error) {
	if start < 0 {
		start = size + start
		if start < 0 {
			return 0, 0, fmt.Errorf("negative offset before start of file")
		}
	}
	if end < 0 {
		end = size
	}
	if start > size {
		start = size
	}
	if end > size {
		end = size
	}
	if end < start {
		end = start
	}
	return start, end, nil
}

func (f *Fs) WriteFile(ctx context.Context, path string, data []byte) error {
	p := clean(path)
	sum := md5.Sum(data)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dirs[p] {
		return fs.NewError(fs.KindAlreadyExists, "write_file", p, fmt.Errorf("path is a directory"))
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.files[p] = &fileData{data: cp, modTime: time.Now().Unix(), checksum: hex.EncodeToString(sum[:])}
	return nil
}

func (f *Fs) Touch(ctx context.Context, path string) error {
	p := clean(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	if fd, ok := f.files[p]; ok {
		fd.modTime = time.Now().Unix()
		return nil
	}
	f.files[p] = &fileData{data: nil, modTime: time.Now().Unix(), checksum: emptyChecksum()}
	return nil
}

func emptyChecksum() string {
	sum := md5.Sum(nil)
	return hex.EncodeToString(sum[:])
}

func (f *Fs) Mkdir(ctx context.Context, path string, createParents bool) error {
	p := clean(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[p]; ok {
		return fs.NewError(fs.KindAlreadyExists, "mkdir", p, fmt.Errorf("path is a file"))
	}
	if !createParents {
		parent := fspath.Dir(p)
		if parent != "/" && !f.dirs[parent] && !f.hasChildrenLocked(parent) {
			return fs.NewError(fs.KindParentMissing, "mkdir", p, fmt.Errorf("parent %s missing", parent))
		}
	}
	f.dirs[p] = true
	return nil
}

func (f *Fs) hasChildrenLocked(dir string) bool { return f.hasChildren(dir) }

func (f *Fs) Rmdir(ctx context.Context, path string) error {
	p := clean(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hasChildren(p) {
		return fs.NewError(fs.KindInvalidPath, "rmdir", p, fmt.Errorf("directory not empty"))
	}
	delete(f.dirs, p)
	return nil
}

func (f *Fs) RemoveFile(ctx context.Context, path string) error {
	p := clean(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[p]; !ok {
		return fs.NewError(fs.KindNotFound, "rm_file", p, fmt.Errorf("no such file"))
	}
	delete(f.files, p)
	return nil
}

func (f *Fs) CopyFile(ctx context.Context, src, dst string) error {
	sp, dp := clean(src), clean(dst)
	f.mu.Lock()
	defer f.mu.Unlock()
	fd, ok := f.files[sp]
	if !ok {
		return fs.NewError(fs.KindNotFound, "copy_file", sp, fmt.Errorf("no such file"))
	}
	cp := make([]byte, len(fd.data))
	copy(cp, fd.data)
	f.files[dp] = &fileData{data: cp, modTime: time.Now().Unix(), checksum: fd.checksum}
	return nil
}

// ---- read/write stream adapters -----------------------------------------

type rawReader struct {
	data []byte
}

func (r *rawReader) Size(ctx context.Context) (int64, bool) { return int64(len(r.data)), true }

func (r *rawReader) ReadRange(ctx context.Context, start, length int64) ([]byte, error) {
	size := int64(len(r.data))
	if start >= size {
		return []byte{}, nil
	}
	end := start + length
	if end > size {
		end = size
	}
	out := make([]byte, end-start)
	copy(out, r.data[start:end])
	return out, nil
}

func (r *rawReader) Close() error { return nil }

func (f *Fs) OpenRead(ctx context.Context, path string) (fs.RawReader, error) {
	p := clean(path)
	f.mu.RLock()
	fd, ok := f.files[p]
	f.mu.RUnlock()
	if !ok {
		return nil, fs.NewError(fs.KindNotFound, "open_read", p, fmt.Errorf("no such file"))
	}
	return &rawReader{data: fd.data}, nil
}

type uploadHandle struct {
	buf *bytes.Buffer
}

type rawWriter struct {
	f    *Fs
	path string
}

func (w *rawWriter) InitiateUpload(ctx context.Context) (fs.UploadHandle, error) {
	return &uploadHandle{buf: &bytes.Buffer{}}, nil
}

func (w *rawWriter) UploadChunk(ctx context.Context, handle fs.UploadHandle, index int, data []byte, final bool) error {
	h := handle.(*uploadHandle)
	h.buf.Write(data)
	if final {
		return w.f.WriteFile(ctx, w.path, h.buf.Bytes())
	}
	return nil
}

func (w *rawWriter) CancelUpload(ctx context.Context, handle fs.UploadHandle) error {
	return nil
}

func (w *rawWriter) PipeFile(ctx context.Context, data []byte) error {
	return w.f.WriteFile(ctx, w.path, data)
}

func (f *Fs) OpenWrite(ctx context.Context, path string) (fs.RawWriter, error) {
	return &rawWriter{f: f, path: clean(path)}, nil
}

var _ fs.Fs = (*Fs)(nil)
