package lock

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Overlaps reports whether some path could match both glob patterns.
//
// The test is deliberately conservative: a missed collision breaks the
// mutual-exclusion guarantee, while a false positive only costs
// availability. Two checks are combined:
//
//  1. When either pattern is glob-free it is treated as a concrete path
//     and matched against the other pattern with doublestar.
//  2. The literal leading segments of each pattern (everything before the
//     first segment containing a metacharacter) are compared: a prefix
//     relationship in either direction counts as overlap. A trailing "**"
//     therefore claims the whole sub-tree under its literal prefix, and
//     patterns like "app/*/x" and "app/*/y" collide even though their
//     concrete matches never would.
func Overlaps(a, b string) bool {
	a = normalize(a)
	b = normalize(b)

	if !containsGlob(a) {
		if ok, err := doublestar.Match(b, a); err == nil && ok {
			return true
		}
	}
	if !containsGlob(b) {
		if ok, err := doublestar.Match(a, b); err == nil && ok {
			return true
		}
	}

	// Two glob-free patterns overlap only via the path-containment test.
	if !containsGlob(a) && !containsGlob(b) {
		return segmentPrefix(split(a), split(b)) || segmentPrefix(split(b), split(a))
	}

	pa := literalPrefix(a)
	pb := literalPrefix(b)
	return segmentPrefix(pa, pb) || segmentPrefix(pb, pa)
}

// normalize strips leading "./" and trailing slashes.
func normalize(pattern string) string {
	pattern = strings.TrimPrefix(pattern, "./")
	return strings.TrimSuffix(pattern, "/")
}

// containsGlob reports whether the pattern has any glob metacharacters.
func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func split(pattern string) []string {
	if pattern == "" {
		return nil
	}
	return strings.Split(pattern, "/")
}

// literalPrefix returns the leading segments of a pattern up to (not
// including) the first segment containing a metacharacter.
func literalPrefix(pattern string) []string {
	segments := split(pattern)
	for i, seg := range segments {
		if containsGlob(seg) {
			return segments[:i]
		}
	}
	return segments
}

// segmentPrefix reports whether a is a segment-wise prefix of b.
// An empty prefix (a pattern starting with a wildcard) matches everything.
func segmentPrefix(a, b []string) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
