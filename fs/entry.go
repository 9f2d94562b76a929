package fs

import "strings"

// EntryType classifies the kind of object a directory entry refers to.
type EntryType int

// The recognised entry types. Backends that cannot distinguish link or
// other from file should report TypeFile.
const (
	TypeFile EntryType = iota
	TypeDirectory
	TypeLink
	TypeOther
)

// String implements fmt.Stringer.
func (t EntryType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeLink:
		return "link"
	case TypeOther:
		return "other"
	default:
		return "unknown"
	}
}

// UnknownSize marks an Entry.Size whose value could not be determined
// cheaply, e.g. a streamed HTTP response without Content-Length.
const UnknownSize int64 = -1

// Entry is the unit returned by Info and List(detail=true). It mirrors the
// file entry data model of spec.md section 3.
type Entry struct {
	// Name is the absolute path of the entry within its owning Fs.
	Name string
	Type EntryType
	// Size in bytes. Undefined for directories. UnknownSize for streamed
	// sources whose length isn't known without a full read.
	Size int64
	// Created and Modified are epoch seconds; nil when the backend does
	// not expose them.
	Created  *int64
	Modified *int64
	// Checksum is an opaque, backend-defined digest string.
	Checksum string
	// Extra carries backend-specific attributes that don't fit the
	// common fields (e.g. storage class, ETag, owner).
	Extra map[string]interface{}
}

// IsDir reports whether the entry names a directory.
func (e *Entry) IsDir() bool { return e.Type == TypeDirectory }

// IsFile reports whether the entry names a regular file.
func (e *Entry) IsFile() bool { return e.Type == TypeFile }

// Base returns the final path segment: one trailing slash is trimmed,
// then the text after the last remaining slash is returned.
func (e *Entry) Base() string {
	if e.Name == "" || e.Name == "/" {
		return e.Name
	}
	trimmed := strings.TrimSuffix(e.Name, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}
