package fs

import "context"

// Features advertises optional capabilities a backend may or may not
// support, per spec.md section 9 ("use an interface with explicit
// capability flags rather than a single all-or-nothing type").
type Features struct {
	// SupportsAppend is true when OpenWrite honours append mode.
	SupportsAppend bool
	// SupportsEmptyDirectories is true when the backend can represent a
	// directory with no children (object stores generally cannot).
	SupportsEmptyDirectories bool
	// AsyncNative is true when the Fs was constructed to run on the
	// caller's own cooperative loop rather than bridging through the
	// dedicated I/O thread (spec.md section 4.7).
	AsyncNative bool
	// CanCopyFile is true when CopyFile offers a same-backend fast path
	// distinct from read+write.
	CanCopyFile bool
}

// UploadHandle is an opaque token returned by RawWriter.InitiateUpload and
// threaded through subsequent UploadChunk/CancelUpload calls. Backends
// that don't support multipart writes never produce one.
type UploadHandle interface{}

// RawReader is the narrow per-open-file read contract a backend hands to
// the read-buffer strategies (spec.md section 4.5/4.6): a size (if cheap)
// and a cold range fetcher.
type RawReader interface {
	// Size returns the object's length and whether it is known. Backends
	// that stream without a Content-Length return false.
	Size(ctx context.Context) (int64, bool)
	// ReadRange fetches bytes [start, start+length). A short read at EOF
	// is not an error; callers never request a negative offset here
	// (that translation happens above this layer once size is known).
	ReadRange(ctx context.Context, start, length int64) ([]byte, error)
	// Close releases backend resources (connections, handles).
	Close() error
}

// RawWriter is the narrow per-open-file write contract (spec.md section
// 4.6): a block accumulator above calls InitiateUpload once a block
// boundary is crossed, UploadChunk per completed block, and either
// CancelUpload on abort or a final UploadChunk(final=true) on close. Fs
// implementations whose objects are always written in one shot only need
// to implement PipeFile and may return ErrNotSupported from the other three.
type RawWriter interface {
	// InitiateUpload begins a multi-part upload, returning a handle
	// threaded through subsequent calls.
	InitiateUpload(ctx context.Context) (UploadHandle, error)
	// UploadChunk uploads block index (0-based) of data. final marks the
	// last chunk (which may be shorter than the configured block size or
	// even empty for a file whose size is an exact multiple of blocksize).
	UploadChunk(ctx context.Context, handle UploadHandle, index int, data []byte, final bool) error
	// CancelUpload aborts an in-flight multipart upload; no PipeFile
	// fallback follows a cancellation.
	CancelUpload(ctx context.Context, handle UploadHandle) error
	// PipeFile writes an entire payload in one shot; taken when the
	// write never reached a block boundary.
	PipeFile(ctx context.Context, data []byte) error
}

// Fs is the abstract filesystem contract every backend conforms to
// (spec.md section 4.8). Default derivations (walk, find, glob, du,
// exists, isfile, isdir, cp/get/put/rm) are free functions in
// fs/walk, fs/list and fs/operations that operate against this
// interface, exactly as the teacher layers fs/walk and fs/operations
// over its fs.Fs rather than as methods on every backend.
type Fs interface {
	// Name returns the registered protocol name, e.g. "memory", "local".
	Name() string
	// Root returns the path this instance was constructed against.
	Root() string
	// String returns a human-readable identifier, typically "name:root".
	String() string
	// Features reports this instance's optional capabilities.
	Features() *Features

	// Info returns the entry for path, or a *Error with KindNotFound.
	Info(ctx context.Context, path string) (*Entry, error)
	// List returns the direct children of path (a directory). Results
	// are deduplicated; order is unspecified but stable within a call.
	List(ctx context.Context, path string) ([]*Entry, error)

	// ReadFile returns bytes [start, end) of path. end == -1 means "to
	// EOF"; a negative start combined with a known size addresses from EOF
	// (start = size+start). Passing both as 0,-1 reads the whole file.
	ReadFile(ctx context.Context, path string, start, end int64) ([]byte, error)
	// WriteFile writes data atomically (best-effort) as path's entire
	// content, creating or replacing it.
	WriteFile(ctx context.Context, path string, data []byte) error
	// Touch creates an empty file, or updates Modified if the file and
	// the backend supports that without a rewrite.
	Touch(ctx context.Context, path string) error

	// OpenRead opens path for buffered random-access read.
	OpenRead(ctx context.Context, path string) (RawReader, error)
	// OpenWrite opens path for buffered block-accumulated write.
	OpenWrite(ctx context.Context, path string) (RawWriter, error)

	// Mkdir creates path as a directory. createParents also creates
	// missing ancestors; otherwise a missing parent is KindParentMissing.
	Mkdir(ctx context.Context, path string, createParents bool) error
	// Rmdir removes an empty directory.
	Rmdir(ctx context.Context, path string) error
	// RemoveFile removes a single file.
	RemoveFile(ctx context.Context, path string) error

	// CopyFile copies src to dst within this Fs. Implementations without
	// a same-backend fast path (Features.CanCopyFile false) either copy by
	// read+write themselves or return an error satisfying
	// errors.Is(err, ErrNotSupported).
	CopyFile(ctx context.Context, src, dst string) error
}

// ErrNotSupported is returned by optional operations a backend does not
// implement (spec.md section 6: "any of which may be unimplemented").
var ErrNotSupported = NewError(KindReadOnly, "", "", nil)

// Lister is implemented by a Fs that can invalidate its own
// directory-listing cache, used by the caching wrapper and by writes that
// must keep listings fresh (spec.md section 4.4).
type Lister interface {
	InvalidateListing(path string)
}
