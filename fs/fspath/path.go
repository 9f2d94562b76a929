// Package fspath parses the chained URL grammar of spec.md section 6 and
// normalizes in-filesystem paths, mirroring the role of the teacher's own
// fs/fspath package (remote:path parsing) generalized to the spec's
// "proto1://proto2://...::final://path" chain syntax.
package fspath

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var protocolName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*$`)

// Segment is one layer of a parsed URL chain, outermost first.
type Segment struct {
	// Protocol is the scheme name, e.g. "cache", "zip", "s3". Empty for a
	// bare path defaulting to the local filesystem.
	Protocol string
	// Path is the in-protocol path or pattern for this segment.
	Path string
	// Kwargs are this protocol's construction options, looked up from the
	// caller-supplied per-protocol kwargs map.
	Kwargs map[string]string
}

// Chain is a fully parsed, possibly layered URL.
type Chain struct {
	// Segments lists every layer, outermost-first.
	Segments []Segment
	// Target is the innermost resolved "protocol://path" (or bare path).
	Target string
}

var (
	errEmpty       = errors.New("url cannot be empty")
	errEmptySegment = errors.New("chain contains an empty segment")
)

// Parse splits raw on the "::" chain operator and resolves each segment's
// protocol, path, and kwargs (looked up by protocol name in kwargs).
// Protocol appearing twice in the chain is disambiguated positionally: the
// kwargs map may instead be keyed "protocol#N" (N = 0-based occurrence
// index) to target a specific occurrence; a plain "protocol" key is used
// as the fallback for any occurrence without a more specific key.
func Parse(raw string, kwargs map[string]map[string]string) (*Chain, error) {
	if raw == "" {
		return nil, errEmpty
	}
	parts := splitChain(raw)
	seen := make(map[string]int)
	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, errEmptySegment
		}
		proto, path := splitSegment(part)
		occurrence := seen[proto]
		seen[proto] = occurrence + 1
		segments = append(segments, Segment{
			Protocol: proto,
			Path:     path,
			Kwargs:   lookupKwargs(kwargs, proto, occurrence),
		})
	}
	last := segments[len(segments)-1]
	target := last.Path
	if last.Protocol != "" {
		target = last.Protocol + "://" + last.Path
	}
	return &Chain{Segments: segments, Target: target}, nil
}

func lookupKwargs(kwargs map[string]map[string]string, proto string, occurrence int) map[string]string {
	if kwargs == nil {
		return nil
	}
	if m, ok := kwargs[fmt.Sprintf("%s#%d", proto, occurrence)]; ok {
		return m
	}
	return kwargs[proto]
}

// splitChain splits on "::" without being fooled by "://" inside a segment.
func splitChain(raw string) []string {
	return strings.Split(raw, "::")
}

// splitSegment resolves one chain segment into (protocol, path). A bare
// protocol name with no "://" and no path (e.g. "cache" acting purely as a
// wrapper marker) yields (proto, ""). Anything else that doesn't look like
// a scheme defaults to the local filesystem with protocol "".
func splitSegment(segment string) (protocol, path string) {
	if idx := strings.Index(segment, "://"); idx >= 0 {
		proto := segment[:idx]
		if protocolName.MatchString(proto) {
			return proto, segment[idx+3:]
		}
	}
	if protocolName.MatchString(segment) && !strings.ContainsAny(segment, "/\\.") {
		return segment, ""
	}
	return "", segment
}

// StripProtocol removes every leading "protocol://" prefix from path,
// returning the canonical in-Fs path. It is idempotent: calling it again
// on its own output is a no-op, satisfying spec.md's invariant.
func StripProtocol(protocol, path string) string {
	prefix := protocol + "://"
	for strings.HasPrefix(path, prefix) {
		path = path[len(prefix):]
	}
	return path
}

// UnstripProtocol is the inverse of StripProtocol: it adds exactly one
// prefix, unless one is already present.
func UnstripProtocol(protocol, path string) string {
	prefix := protocol + "://"
	if strings.HasPrefix(path, prefix) {
		return path
	}
	return prefix + path
}

// Normalize canonicalizes an in-Fs path per spec.md section 3: forward
// slashes, no trailing slash except the literal root, no empty segments,
// no "." or "..". It returns the cleaned path and whether the input had a
// trailing slash (meaningful to copy operations per spec.md section 3).
func Normalize(p string) (clean string, hadTrailingSlash bool) {
	p = strings.ReplaceAll(p, "\\", "/")
	hadTrailingSlash = len(p) > 1 && strings.HasSuffix(p, "/")
	leadingSlash := strings.HasPrefix(p, "/")
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, seg := range parts {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	clean = strings.Join(out, "/")
	if leadingSlash {
		clean = "/" + clean
	}
	if clean == "" {
		clean = "/"
	}
	return clean, hadTrailingSlash
}

// Dir returns the normalized parent of p ("/" for a top-level path).
func Dir(p string) string {
	clean, _ := Normalize(p)
	if clean == "/" {
		return "/"
	}
	idx := strings.LastIndex(clean, "/")
	if idx <= 0 {
		return "/"
	}
	return clean[:idx]
}

// Base returns the final path segment of p.
func Base(p string) string {
	clean, _ := Normalize(p)
	if clean == "/" {
		return "/"
	}
	idx := strings.LastIndex(clean, "/")
	return clean[idx+1:]
}

// Join joins path segments with "/" and normalizes the result.
func Join(elems ...string) string {
	clean, _ := Normalize(strings.Join(elems, "/"))
	return clean
}
