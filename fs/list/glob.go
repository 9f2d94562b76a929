// Package list implements glob pattern matching layered on top of
// fs/walk (find and exists live in fs/walk itself), grounded on the teacher's
// fs/filter glob-to-regexp compiler (GlobToRegexp) but trimmed to the
// wildcard subset spec.md section 4.8 actually requires: "*", "?",
// "[abc]" character classes (including POSIX "[^...]"/"[!...]"
// negation), and "**" crossing directory boundaries.
package list

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/fsspec/filesystem-spec/fs"
	"github.com/fsspec/filesystem-spec/fs/fspath"
	"github.com/fsspec/filesystem-spec/fs/walk"
)

var regexpSpecial = regexp.MustCompile(`[.+()|^$\\]`)

// GlobToRegexp compiles a glob pattern into an anchored regular
// expression matching a full, normalized path. Per spec.md section 9's
// resolution of the Open Question on bracket escapes, an unbalanced "["
// or "]" is treated as a literal character rather than a compile error.
func GlobToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := findClassEnd(runes, i)
			if end < 0 {
				// Unbalanced: match literally.
				b.WriteString(`\[`)
				continue
			}
			b.WriteString(translateClass(runes[i : end+1]))
			i = end
		default:
			if regexpSpecial.MatchString(string(c)) {
				b.WriteRune('\\')
			}
			b.WriteRune(c)
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// findClassEnd returns the index of the ']' that closes the class opened
// at runes[open] == '[', or -1 if there is none (unbalanced).
func findClassEnd(runes []rune, open int) int {
	i := open + 1
	if i < len(runes) && (runes[i] == '^' || runes[i] == '!') {
		i++
	}
	if i < len(runes) && runes[i] == ']' {
		i++ // a ']' right after the (optional) negation is a literal member
	}
	for ; i < len(runes); i++ {
		if runes[i] == ']' {
			return i
		}
	}
	return -1
}

// translateClass converts a glob bracket expression (including the "!"
// negation spelling) into the regex equivalent.
func translateClass(class []rune) string {
	inner := class[1 : len(class)-1]
	if len(inner) > 0 && inner[0] == '!' {
		inner[0] = '^'
	}
	return "[" + string(inner) + "]"
}

// hasWildcard reports whether pattern contains any glob metacharacter.
func hasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// staticPrefix returns the directory portion of pattern that precedes its
// first wildcard segment, used to bound the walk instead of scanning the
// whole tree.
func staticPrefix(pattern string) string {
	idx := strings.IndexAny(pattern, "*?[")
	if idx < 0 {
		return fspath.Dir(pattern)
	}
	prefix := pattern[:idx]
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		prefix = prefix[:i]
	} else {
		prefix = "/"
	}
	if prefix == "" {
		prefix = "/"
	}
	return prefix
}

// Glob expands pattern against f, returning matching entries sorted by
// path. maxDepth bounds recursion below the static prefix; <= 0 is
// unbounded. A literal "/" never matches "*" or "?"; only "**" crosses
// directory boundaries (spec.md section 4.8/section 8).
func Glob(ctx context.Context, f fs.Fs, pattern string, maxDepth int) ([]*fs.Entry, error) {
	clean, _ := fspath.Normalize(pattern)
	if !hasWildcard(clean) {
		e, err := f.Info(ctx, clean)
		if err != nil {
			if fs.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return []*fs.Entry{e}, nil
	}

	re, err := GlobToRegexp(clean)
	if err != nil {
		return nil, err
	}

	root := staticPrefix(clean)
	var out []*fs.Entry
	seen := make(map[string]bool)
	visit := func(dir string, dirs, files []*fs.Entry) error {
		for _, e := range append(append([]*fs.Entry{}, dirs...), files...) {
			if seen[e.Name] {
				continue
			}
			if re.MatchString(e.Name) {
				seen[e.Name] = true
				out = append(out, e)
			}
		}
		return nil
	}
	if err := walk.Walk(ctx, f, root, walk.Options{MaxDepth: maxDepth, TopDown: true}, visit); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
