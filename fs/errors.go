package fs

import (
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/pkg/errors"
)

// Kind enumerates the error taxonomy of spec.md section 7. Backend
// adapters and the abstract filesystem surface one of these directly for
// single-path operations.
type Kind int

// The recognised error kinds.
const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindPermissionDenied
	KindReadOnly
	KindParentMissing
	KindInvalidPath
	KindInvalidRange
	KindProtocolUnknown
	KindBackendError
	KindTransactionAborted
	KindCancelled
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindReadOnly:
		return "ReadOnly"
	case KindParentMissing:
		return "ParentMissing"
	case KindInvalidPath:
		return "InvalidPath"
	case KindInvalidRange:
		return "InvalidRange"
	case KindProtocolUnknown:
		return "ProtocolUnknown"
	case KindBackendError:
		return "BackendError"
	case KindTransactionAborted:
		return "TransactionAborted"
	case KindCancelled:
		return "Cancelled"
	case KindTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned across the VFS contract. It
// carries enough context (kind, operation, path) for callers to branch on
// failure class without string matching, while still wrapping the
// underlying cause for diagnostics.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Cause implements the github.com/pkg/errors Causer interface.
func (e *Error) Cause() error { return e.Err }

// NewError builds an *Error, wrapping err (if non-nil) with op for context.
func NewError(kind Kind, op, path string, err error) *Error {
	if err != nil {
		err = errors.Wrap(err, op)
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// IsKind reports whether err is, or wraps, an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var fsErr *Error
	if errors.As(err, &fsErr) {
		return fsErr.Kind == kind
	}
	return false
}

// IsNotFound is a convenience wrapper for the common case.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// OnError selects how a bulk operation (cat/get/put/rm) reacts to a
// per-path failure, per spec.md section 7.
type OnError int

const (
	// OnErrorRaise cancels remaining work and returns the first error.
	OnErrorRaise OnError = iota
	// OnErrorOmit drops the failed entry from the result silently.
	OnErrorOmit
	// OnErrorReturn substitutes the error as the value for that path.
	OnErrorReturn
)

var errUseOfClosedNetworkConnection = errors.New("use of closed network connection")

// isClosedConnError reports whether err indicates a connection that was
// closed locally, mirroring the teacher's fs/fserrors classification.
func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	if strings.Contains(err.Error(), "use of closed network connection") {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ECONNRESET || errno == syscall.EPIPE || errno == syscall.ECONNABORTED
	}
	return false
}

// ShouldRetry classifies a raw backend error as transient, the way the
// teacher's fs/fserrors.ShouldRetry does: closed connections, EOF and its
// relatives, and net/url errors wrapping those.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if isClosedConnError(err) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ShouldRetry(urlErr.Err)
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return ShouldRetry(pathErr.Err)
	}
	return false
}
