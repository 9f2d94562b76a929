package operations

import (
	"context"
	"strings"

	"github.com/fsspec/filesystem-spec/fs"
	"github.com/fsspec/filesystem-spec/fs/fspath"
	"github.com/fsspec/filesystem-spec/fs/walk"
)

// CopyOptions controls Copy and CopyMulti, corresponding to the flags of
// spec.md section 4.8's cp/get/put derivations.
type CopyOptions struct {
	// Recursive copies a directory source's contents. A directory source
	// with Recursive false is a silent no-op, matching the teacher's own
	// "recursive=False on a directory does nothing" contract.
	Recursive bool
	// AutoMkdir creates a missing destination directory implied by the
	// target path, rather than failing with ParentMissing.
	AutoMkdir bool
	// MaxDepth bounds recursive descent below the source directory; <= 0
	// is unbounded.
	MaxDepth int
}

// Copy copies src on srcFS to dst on dstFS. srcFS and dstFS may be the same
// instance (a same-backend "cp") or different ones (a cross-backend
// "get"/"put"), following spec.md section 4.8's destination-resolution
// table: an existing directory destination receives the source under its
// own basename; a destination path ending "/" is always treated as a
// directory (created if it doesn't exist, regardless of AutoMkdir,
// since the trailing slash is an explicit directory directive
// from the caller); anything else without AutoMkdir and a missing parent
// fails with KindParentMissing.
func Copy(ctx context.Context, srcFS fs.Fs, src string, dstFS fs.Fs, dst string, opts CopyOptions) error {
	srcClean, srcTrailing := fspath.Normalize(src)
	dstClean, dstTrailing := fspath.Normalize(dst)

	srcEntry, err := srcFS.Info(ctx, srcClean)
	if err != nil {
		return err
	}

	if srcEntry.IsFile() {
		return copyFile(ctx, srcFS, srcClean, dstFS, dstClean, dstTrailing, opts)
	}
	return copyDir(ctx, srcFS, srcClean, srcTrailing, dstFS, dstClean, dstTrailing, opts)
}

// CopyMulti copies every source in srcs onto dst, which must be (or become)
// a directory: each source lands under dst as dst/basename(src).
func CopyMulti(ctx context.Context, srcFS fs.Fs, srcs []string, dstFS fs.Fs, dst string, opts CopyOptions) error {
	dstClean, _ := fspath.Normalize(dst)
	if err := ensureDir(ctx, dstFS, dstClean, true); err != nil {
		return err
	}
	for _, src := range srcs {
		srcClean, _ := fspath.Normalize(src)
		target := fspath.Join(dstClean, fspath.Base(srcClean))
		if err := Copy(ctx, srcFS, srcClean, dstFS, target, opts); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(ctx context.Context, srcFS fs.Fs, src string, dstFS fs.Fs, dst string, dstTrailing bool, opts CopyOptions) error {
	if dstTrailing {
		dir := strings.TrimSuffix(dst, "/")
		if dir == "" {
			dir = "/"
		}
		if err := ensureDir(ctx, dstFS, dir, opts.AutoMkdir || dstTrailing); err != nil {
			return err
		}
		dst = fspath.Join(dir, fspath.Base(src))
		return copyBytes(ctx, srcFS, src, dstFS, dst)
	}

	dstEntry, err := dstFS.Info(ctx, dst)
	switch {
	case err == nil && dstEntry.IsDir():
		dst = fspath.Join(dst, fspath.Base(src))
	case err == nil:
		// Existing file: overwrite in place.
	default:
		if !fs.IsNotFound(err) {
			return err
		}
		parent := fspath.Dir(dst)
		if parentErr := ensureDir(ctx, dstFS, parent, opts.AutoMkdir); parentErr != nil {
			return parentErr
		}
	}
	return copyBytes(ctx, srcFS, src, dstFS, dst)
}

func copyDir(ctx context.Context, srcFS fs.Fs, src string, srcTrailing bool, dstFS fs.Fs, dst string, dstTrailing bool, opts CopyOptions) error {
	if !opts.Recursive {
		return nil
	}

	target := dst
	if !srcTrailing {
		target = fspath.Join(dst, fspath.Base(src))
	}

	dstEntry, err := dstFS.Info(ctx, dst)
	dstIsDir := err == nil && dstEntry.IsDir()
	if !dstIsDir {
		if !fs.IsNotFound(err) && err != nil {
			return err
		}
		if err := ensureDir(ctx, dstFS, dst, opts.AutoMkdir || dstTrailing); err != nil {
			return err
		}
	}
	if !srcTrailing {
		if err := ensureDir(ctx, dstFS, target, true); err != nil {
			return err
		}
	}

	return walk.Walk(ctx, srcFS, src, walk.Options{MaxDepth: opts.MaxDepth, TopDown: true}, func(dir string, dirs, files []*fs.Entry) error {
		for _, d := range dirs {
			childRel := strings.TrimPrefix(d.Name, src)
			if err := ensureDir(ctx, dstFS, fspath.Join(target, childRel), true); err != nil {
				return err
			}
		}
		for _, f := range files {
			childRel := strings.TrimPrefix(f.Name, src)
			destPath := fspath.Join(target, childRel)
			if err := copyBytes(ctx, srcFS, f.Name, dstFS, destPath); err != nil {
				return err
			}
		}
		return nil
	})
}

func copyBytes(ctx context.Context, srcFS fs.Fs, src string, dstFS fs.Fs, dst string) error {
	if srcFS == dstFS {
		if err := srcFS.CopyFile(ctx, src, dst); err == nil {
			return nil
		}
		// Fall through to read+write when the backend has no fast path.
	}
	data, err := srcFS.ReadFile(ctx, src, 0, -1)
	if err != nil {
		return err
	}
	return dstFS.WriteFile(ctx, dst, data)
}

// ensureDir makes sure path exists as a directory on f. If it's missing and
// create is false, it returns a KindParentMissing error.
func ensureDir(ctx context.Context, f fs.Fs, path string, create bool) error {
	e, err := f.Info(ctx, path)
	if err == nil {
		if e.IsDir() {
			return nil
		}
		return fs.NewError(fs.KindAlreadyExists, "ensureDir", path, nil)
	}
	if !fs.IsNotFound(err) {
		return err
	}
	if !create {
		return fs.NewError(fs.KindParentMissing, "ensureDir", path, nil)
	}
	return f.Mkdir(ctx, path, true)
}

// Rm removes every path in paths. A directory requires recursive; maxDepth
// bounds how deep a recursive removal descends (spec.md section 8: "max
// depth 1 removes only direct children", leaving the root directory and
// anything beyond the bound untouched). onError governs how failures across
// multiple paths are handled; Rmdir calls made as part of cleaning up an
// (possibly only partially emptied, due to maxDepth) directory are
// best-effort and never fail the operation.
func Rm(ctx context.Context, f fs.Fs, paths []string, recursive bool, maxDepth int, onError fs.OnError) error {
	var firstErr error
	for _, p := range paths {
		if err := rmOne(ctx, f, p, recursive, maxDepth); err != nil {
			if onError == fs.OnErrorRaise {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if onError == fs.OnErrorReturn {
		return firstErr
	}
	return nil
}

func rmOne(ctx context.Context, f fs.Fs, path string, recursive bool, maxDepth int) error {
	clean, _ := fspath.Normalize(path)
	e, err := f.Info(ctx, clean)
	if err != nil {
		return err
	}
	if e.IsFile() {
		return f.RemoveFile(ctx, clean)
	}
	if !recursive {
		return nil
	}
	return walk.Walk(ctx, f, clean, walk.Options{MaxDepth: maxDepth, TopDown: false}, func(dir string, dirs, files []*fs.Entry) error {
		for _, file := range files {
			if err := f.RemoveFile(ctx, file.Name); err != nil {
				return err
			}
		}
		_ = f.Rmdir(ctx, dir) // best-effort; non-empty (e.g. truncated by maxDepth) is not an error here
		return nil
	})
}
