// Package treepath canonicalizes and composes the "/"-separated addresses of
// nodes within a hierarchical document.
package treepath

import (
	"fmt"
	"strings"
	"unicode"
)

// Sep separates the segments of a path.
const Sep = "/"

// Root is the canonical path of the document root.
const Root = Sep

// Normalize returns the canonical form of |path|: empty segments are
// dropped, repeated separators collapse, and the result has exactly one
// leading separator and no trailing one. Normalize is idempotent.
func Normalize(path string) string {
	return Sep + strings.Join(Split(path), Sep)
}

// Split returns the non-empty segments of |path|, in order.
// The Root path has no segments.
func Split(path string) []string {
	var out []string
	for _, s := range strings.Split(path, Sep) {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Join composes |segments| into a canonical path. Segments may themselves
// contain separators.
func Join(segments ...string) string {
	return Normalize(strings.Join(segments, Sep))
}

// Child returns the canonical path of |key| beneath |parent|.
func Child(parent, key string) string {
	return Join(parent, key)
}

// Depth is the number of segments of |path|. Depth(Root) is zero.
func Depth(path string) int {
	return len(Split(path))
}

// Parent returns the canonical parent of |path|. The parent of Root is Root.
func Parent(path string) string {
	var s = Split(path)
	if len(s) == 0 {
		return Root
	}
	return Sep + strings.Join(s[:len(s)-1], Sep)
}

// Base returns the last segment of |path|, or "" for Root.
func Base(path string) string {
	var s = Split(path)
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

// IsAncestor returns true if |ancestor| is a strict ancestor of |path|.
func IsAncestor(ancestor, path string) bool {
	ancestor, path = Normalize(ancestor), Normalize(path)

	if ancestor == path {
		return false
	} else if ancestor == Root {
		return true
	}
	return strings.HasPrefix(path, ancestor+Sep)
}

// Relative drops the leading |rootDepth| segments of the absolute node
// address |segments|, returning the address relative to a subscription
// root of that depth. The subscription root itself yields an empty result.
func Relative(segments []string, rootDepth int) []string {
	if rootDepth >= len(segments) {
		return []string{}
	}
	var out = make([]string, len(segments)-rootDepth)
	copy(out, segments[rootDepth:])
	return out
}

// Validate returns an error if any segment of |path| uses a character
// which store keys may not contain.
func Validate(path string) error {
	for _, s := range Split(path) {
		if err := ValidateKey(s); err != nil {
			return fmt.Errorf("invalid path %q: %w", path, err)
		}
	}
	return nil
}

// ValidateKey returns an error if |key| is not a valid single path segment.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	for _, r := range key {
		if strings.ContainsRune(forbidden, r) || unicode.IsControl(r) {
			return fmt.Errorf("key %q contains forbidden character %q", key, r)
		}
	}
	return nil
}

// forbidden characters of a key. Sep is included as a segment may never
// contain the separator.
const forbidden = ".#$[]" + Sep
