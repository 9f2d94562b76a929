// Package walk implements the traversal derivations of spec.md section
// 4.8 (walk, find, du, exists, isfile, isdir), all built on repeated calls
// to Fs.List, the way the teacher's fs/walk package walks over fs.Fs
// rather than requiring every backend to implement its own recursion.
package walk

import (
	"context"
	"sort"

	"github.com/fsspec/filesystem-spec/fs"
)

// VisitFunc receives one directory level per call: dir is the directory
// path, dirs and files are its direct children split by type.
type VisitFunc func(dir string, dirs, files []*fs.Entry) error

// Options configures a Walk.
type Options struct {
	// MaxDepth limits recursion; <= 0 means unbounded.
	MaxDepth int
	// TopDown visits a directory before its children when true; false,
	// the zero value, visits bottom-up. Find and Glob always walk top-down.
	TopDown bool
	// OnError is invoked when List fails for a directory. Returning nil
	// continues the walk (skipping that subtree); returning the error
	// (or any other error) aborts.
	OnError func(path string, err error) error
}

// Walk traverses root, invoking fn once per directory level, honoring
// Options.MaxDepth and Options.TopDown.
func Walk(ctx context.Context, f fs.Fs, root string, opts Options, fn VisitFunc) error {
	return walk(ctx, f, root, 1, opts, fn)
}

func walk(ctx context.Context, f fs.Fs, dir string, depth int, opts Options, fn VisitFunc) error {
	entries, err := f.List(ctx, dir)
	if err != nil {
		if opts.OnError != nil {
			if handled := opts.OnError(dir, err); handled == nil {
				return nil
			}
		}
		return err
	}

	var dirs, files []*fs.Entry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}

	atMaxDepth := opts.MaxDepth > 0 && depth >= opts.MaxDepth

	if opts.TopDown {
		if err := fn(dir, dirs, files); err != nil {
			return err
		}
	}

	if !atMaxDepth {
		for _, d := range dirs {
			if err := walk(ctx, f, d.Name, depth+1, opts, fn); err != nil {
				return err
			}
		}
	}

	if !opts.TopDown {
		if err := fn(dir, dirs, files); err != nil {
			return err
		}
	}

	return nil
}

// Find returns every file under root (never directories), deduplicated,
// sorted by path for deterministic ordering across runs.
func Find(ctx context.Context, f fs.Fs, root string, maxDepth int) ([]*fs.Entry, error) {
	seen := make(map[string]bool)
	var out []*fs.Entry
	err := Walk(ctx, f, root, Options{MaxDepth: maxDepth, TopDown: true}, func(dir string, dirs, files []*fs.Entry) error {
		for _, file := range files {
			if seen[file.Name] {
				continue
			}
			seen[file.Name] = true
			out = append(out, file)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Du sums the size of every file under root.
func Du(ctx context.Context, f fs.Fs, root string) (int64, error) {
	files, err := Find(ctx, f, root, 0)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, file := range files {
		if file.Size > 0 {
			total += file.Size
		}
	}
	return total, nil
}

// Exists reports whether path resolves to any entry.
func Exists(ctx context.Context, f fs.Fs, path string) bool {
	_, err := f.Info(ctx, path)
	return err == nil
}

// IsFile reports whether path resolves to a file entry.
func IsFile(ctx context.Context, f fs.Fs, path string) bool {
	e, err := f.Info(ctx, path)
	return err == nil && e.IsFile()
}

// IsDir reports whether path resolves to a directory entry.
func IsDir(ctx context.Context, f fs.Fs, path string) bool {
	e, err := f.Info(ctx, path)
	return err == nil && e.IsDir()
}

// ListNames is a convenience wrapper returning just the names from List,
// matching spec.md's ls(path, detail=false) form.
func ListNames(ctx context.Context, f fs.Fs, path string) ([]string, error) {
	entries, err := f.List(ctx, path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}
