// Package open implements the Open Helpers of spec.md section 4.12: URL
// chain resolution through the registry and instance cache, a deferred
// OpenFile handle that only materializes a real stream when asked, and
// OpenLocal's forced local-disk materialization. Grounded on the
// teacher's fs.NewFs/config.LoadConfig/cache.Get call chain (resolving a
// "remote:path" string to a live fs.Fs) and on backend/compress's gzip
// handler for the compression layering, which is why this package pulls
// in the same github.com/buengese/sgzip dependency rclone does for
// seekable gzip rather than the stdlib compress/gzip package.
package open

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/buengese/sgzip"

	"github.com/fsspec/filesystem-spec/backend/local"
	"github.com/fsspec/filesystem-spec/fs"
	"github.com/fsspec/filesystem-spec/fs/cache"
	"github.com/fsspec/filesystem-spec/fs/fspath"
	"github.com/fsspec/filesystem-spec/fs/list"
	"github.com/fsspec/filesystem-spec/fs/operations"
	"github.com/fsspec/filesystem-spec/fs/readbuffer"
	"github.com/fsspec/filesystem-spec/fs/vfsfile"
)

// Mode selects which direction an OpenFile will materialize.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Options controls Open beyond the bare URL and mode.
type Options struct {
	// Compression overrides codec inference from the URL suffix. "none"
	// forces the stream uncompressed; "gzip" forces gzip; "" (default)
	// infers from the final path segment's suffix.
	Compression string
	// BlockSize sets the write-side accumulator block size (read-side
	// strategies use CacheOptions.BlockSize). Zero takes the package default.
	BlockSize int64
	CacheType    readbuffer.Name
	CacheOptions readbuffer.Options
	// Kwargs supplies each chain layer's construction options, keyed by
	// protocol name (or "protocol#N" to disambiguate repeated protocols).
	Kwargs map[string]map[string]string
}

// OpenFile is a deferred handle: resolving the URL chain and touching the
// backend only happens when Reader/Writer is called, not at Open time.
type OpenFile struct {
	url  string
	mode Mode
	opts Options
}

// Open parses url's chain grammar eagerly (catching a malformed URL
// immediately) but defers protocol lookup and touching the backend itself
// until the returned OpenFile is materialized, so an unregistered
// protocol is reported by Reader/Writer rather than by Open.
func Open(ctx context.Context, url string, mode Mode, opts Options) (*OpenFile, error) {
	if _, err := fspath.Parse(url, opts.Kwargs); err != nil {
		return nil, err
	}
	return &OpenFile{url: url, mode: mode, opts: opts}, nil
}

// resolve builds the live Fs for the deepest segment of the chain,
// wrapping outward: each preceding (outer) layer is constructed with
// opts["remote"] set to "<inner protocol>:///", naming the inner layer's
// root, the same convention the teacher's own wrapping backends (e.g. a
// caching remote naming another remote) use instead of literal nested URLs.
func (o *OpenFile) resolve(ctx context.Context) (fs.Fs, string, error) {
	chain, err := fspath.Parse(o.url, o.opts.Kwargs)
	if err != nil {
		return nil, "", err
	}
	segs := chain.Segments
	realPath := segs[len(segs)-1].Path

	var built fs.Fs
	var innerProtocol string
	cfg := fs.GetConfig(ctx)
	for i := len(segs) - 1; i >= 0; i-- {
		seg := segs[i]
		protocol := seg.Protocol
		if protocol == "" {
			protocol = "local"
		}
		info, err := fs.Get(protocol)
		if err != nil {
			return nil, "", err
		}
		fsOpts := make(map[string]string, len(seg.Kwargs)+1)
		for k, v := range seg.Kwargs {
			fsOpts[k] = v
		}
		if built != nil {
			fsOpts["remote"] = innerProtocol + ":///"
		}
		next, err := cache.GetFn(ctx, info.Name, "/", fsOpts, cfg.SkipInstanceCache, info.NewFs)
		if err != nil {
			return nil, "", err
		}
		built = next
		innerProtocol = info.Name
	}
	return built, realPath, nil
}

// codec resolves which compression codec applies, honoring an explicit
// override before falling back to suffix inference (spec.md section
// 4.12).
func (o *OpenFile) codec(path string) string {
	if o.opts.Compression != "" {
		return o.opts.Compression
	}
	if strings.HasSuffix(path, ".gz") {
		return "gzip"
	}
	return "none"
}

// seqReader adapts vfsfile.ReadFile's context-taking Read to io.Reader so
// compression codecs (which expect plain io.Reader) can wrap it.
type seqReader struct {
	ctx context.Context
	rf  *vfsfile.ReadFile
}

func (s *seqReader) Read(p []byte) (int, error) { return s.rf.ReadInto(s.ctx, p) }

// Reader materializes the read-mode stream: the resolved Fs's raw reader
// wrapped in the configured (or inferred) read-buffer strategy, and, if
// the target is compressed, a decompressing layer on top of that.
func (o *OpenFile) Reader(ctx context.Context) (io.ReadCloser, error) {
	f, path, err := o.resolve(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := f.OpenRead(ctx, path)
	if err != nil {
		return nil, err
	}
	cfg := fs.GetConfig(ctx)
	strategyName := o.opts.CacheType
	if strategyName == "" {
		strategyName = readbuffer.Name(cfg.CacheType)
	}
	rf := vfsfile.OpenRead(ctx, raw, strategyName, o.opts.CacheOptions)
	base := &seqReader{ctx: ctx, rf: rf}

	switch o.codec(path) {
	case "gzip":
		gz, err := sgzip.NewReader(base)
		if err != nil {
			_ = rf.Close()
			return nil, fs.NewError(fs.KindBackendError, "open", path, err)
		}
		return &gzipReadCloser{gz: gz, rf: rf}, nil
	default:
		return &plainReadCloser{base: base, rf: rf}, nil
	}
}

type plainReadCloser struct {
	base *seqReader
	rf   *vfsfile.ReadFile
}

func (p *plainReadCloser) Read(b []byte) (int, error) { return p.base.Read(b) }
func (p *plainReadCloser) Close() error                { return p.rf.Close() }

type gzipReadCloser struct {
	gz *sgzip.Reader
	rf *vfsfile.ReadFile
}

func (g *gzipReadCloser) Read(b []byte) (int, error) { return g.gz.Read(b) }
func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	rfErr := g.rf.Close()
	if gzErr != nil {
		return gzErr
	}
	return rfErr
}

// seqWriter adapts vfsfile.WriteFile to io.Writer.
type seqWriter struct {
	ctx context.Context
	wf  *vfsfile.WriteFile
}

func (s *seqWriter) Write(p []byte) (int, error) {
	if err := s.wf.Write(s.ctx, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteCloser is the write-mode materialized stream. Close flushes the
// compression codec's trailer (if any) before committing the buffered
// tail (flushing the final block or falling back to pipe_file); Abort
// cancels an in-flight multipart upload instead.
type WriteCloser struct {
	ctx         context.Context
	wf          *vfsfile.WriteFile
	w           io.Writer
	codecCloser io.Closer
}

func (w *WriteCloser) Write(p []byte) (int, error) { return w.w.Write(p) }

func (w *WriteCloser) Close() error {
	if w.codecCloser != nil {
		if err := w.codecCloser.Close(); err != nil {
			return err
		}
	}
	return w.wf.Close(w.ctx)
}

func (w *WriteCloser) Abort() error { return w.wf.Abort(w.ctx) }

// Writer materializes the write-mode stream for this OpenFile.
func (o *OpenFile) Writer(ctx context.Context) (*WriteCloser, error) {
	f, path, err := o.resolve(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := f.OpenWrite(ctx, path)
	if err != nil {
		return nil, err
	}
	blockSize := o.opts.BlockSize
	wf := vfsfile.OpenWrite(raw, blockSize)
	seq := &seqWriter{ctx: ctx, wf: wf}

	if o.codec(path) == "gzip" {
		gz := sgzip.NewWriter(seq)
		return &WriteCloser{ctx: ctx, wf: wf, w: gz, codecCloser: gz}, nil
	}
	return &WriteCloser{ctx: ctx, wf: wf, w: seq}, nil
}

// OpenFiles is the plural form of Open: for ModeRead, url is treated as a
// glob pattern and every existing match becomes one OpenFile; for
// ModeWrite, urls are taken as a literal path list with no expansion
// (spec.md section 4.12).
func OpenFiles(ctx context.Context, urls []string, mode Mode, opts Options) ([]*OpenFile, error) {
	if mode == ModeWrite {
		out := make([]*OpenFile, 0, len(urls))
		for _, u := range urls {
			of, err := Open(ctx, u, mode, opts)
			if err != nil {
				return nil, err
			}
			out = append(out, of)
		}
		return out, nil
	}

	if len(urls) != 1 {
		out := make([]*OpenFile, 0, len(urls))
		for _, u := range urls {
			of, err := Open(ctx, u, mode, opts)
			if err != nil {
				return nil, err
			}
			out = append(out, of)
		}
		return out, nil
	}

	chain, err := fspath.Parse(urls[0], opts.Kwargs)
	if err != nil {
		return nil, err
	}
	probe, err := Open(ctx, urls[0], mode, opts)
	if err != nil {
		return nil, err
	}
	f, pattern, err := probe.resolve(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := list.Glob(ctx, f, pattern, 0)
	if err != nil {
		return nil, err
	}

	prefix := chainPrefix(chain)
	lastProto := chain.Segments[len(chain.Segments)-1].Protocol

	out := make([]*OpenFile, 0, len(matches))
	for _, m := range matches {
		if !m.IsFile() {
			continue
		}
		url := m.Name
		if lastProto != "" {
			url = lastProto + "://" + m.Name
		}
		if prefix != "" {
			url = prefix + "::" + url
		}
		out = append(out, &OpenFile{url: url, mode: mode, opts: opts})
	}
	return out, nil
}

// chainPrefix rebuilds every layer of chain but the last (innermost, the
// one Glob actually expanded), so each matched OpenFile preserves any
// wrapper layers the original URL named.
func chainPrefix(chain *fspath.Chain) string {
	if len(chain.Segments) <= 1 {
		return ""
	}
	parts := make([]string, 0, len(chain.Segments)-1)
	for _, s := range chain.Segments[:len(chain.Segments)-1] {
		if s.Protocol != "" {
			parts = append(parts, s.Protocol+"://"+s.Path)
		} else {
			parts = append(parts, s.Path)
		}
	}
	return strings.Join(parts, "::")
}

// OpenLocal forces read-mode materialization on local disk: it copies the
// resolved source into a fresh temporary directory via backend/local and
// returns the native path alongside a cleanup function the caller must
// run once done.
func OpenLocal(ctx context.Context, url string, opts Options) (path string, cleanup func() error, err error) {
	of, err := Open(ctx, url, ModeRead, opts)
	if err != nil {
		return "", nil, err
	}
	srcFS, srcPath, err := of.resolve(ctx)
	if err != nil {
		return "", nil, err
	}

	tmpRoot, err := os.MkdirTemp("", "fsspec-open-*")
	if err != nil {
		return "", nil, err
	}
	localFS, err := local.NewFs(ctx, "local", tmpRoot, nil)
	if err != nil {
		return "", nil, err
	}
	staged := "/" + fspath.Base(srcPath)
	if err := operations.Copy(ctx, srcFS, srcPath, localFS, staged, operations.CopyOptions{}); err != nil {
		return "", nil, err
	}

	native := localFS.Root() + staged
	cleanup = func() error {
		return os.RemoveAll(tmpRoot)
	}
	return native, cleanup, nil
}
