// Package vpath implements the path value types used by the roster and
// cset layers: PathComponent (one filename), FilePath (an ordered
// sequence of components), and BookkeepingPath (workspace-control paths,
// a distinct type so the type system forbids mixing the two).
package vpath

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// PathComponent is a single filename. Construction validates it.
type PathComponent string

// ErrInvalidComponent is wrapped by errors.Wrap with the offending value.
var ErrInvalidComponent = errors.New("invalid path component")

// NewComponent validates and returns a PathComponent.
func NewComponent(s string) (PathComponent, error) {
	if s == "" || s == "." || s == ".." {
		return "", errors.Wrapf(ErrInvalidComponent, "%q", s)
	}
	if strings.ContainsRune(s, '/') || strings.ContainsRune(s, 0) {
		return "", errors.Wrapf(ErrInvalidComponent, "%q", s)
	}
	if !utf8.ValidString(s) {
		return "", errors.Wrapf(ErrInvalidComponent, "%q: not valid UTF-8", s)
	}
	return PathComponent(s), nil
}

// FilePath is an ordered sequence of PathComponents; the empty sequence
// denotes the root.
type FilePath []PathComponent

// Root is the empty FilePath.
func Root() FilePath { return nil }

// IsRoot reports whether p denotes the root.
func (p FilePath) IsRoot() bool { return len(p) == 0 }

// Parent returns the path's parent directory and its own basename. Calling
// Parent on the root is invalid (callers must check IsRoot first).
func (p FilePath) Parent() (FilePath, PathComponent) {
	if len(p) == 0 {
		return nil, ""
	}
	return p[:len(p)-1], p[len(p)-1]
}

// Join appends a component, returning a new FilePath.
func (p FilePath) Join(c PathComponent) FilePath {
	out := make(FilePath, len(p)+1)
	copy(out, p)
	out[len(p)] = c
	return out
}

// String renders the path using '/' as separator, "" for root.
func (p FilePath) String() string {
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = string(c)
	}
	return strings.Join(parts, "/")
}

// ParseFilePath splits a '/'-separated string into a FilePath, validating
// every component.
func ParseFilePath(s string) (FilePath, error) {
	if s == "" {
		return Root(), nil
	}
	parts := strings.Split(s, "/")
	out := make(FilePath, 0, len(parts))
	for _, p := range parts {
		c, err := NewComponent(p)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %q", s)
		}
		out = append(out, c)
	}
	return out, nil
}

// Equal reports structural equality between two FilePaths.
func (p FilePath) Equal(o FilePath) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a prefix of p, or equal to it.
func (p FilePath) HasPrefix(prefix FilePath) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Compare provides a total order over FilePath suitable for sorted
// canonical serialization (§6.2): lexicographic by component.
func Compare(a, b FilePath) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// BookkeepingPath is a path constrained to live under the workspace
// control directory (e.g. "_MTN/..."). Kept as a distinct type from
// FilePath so the compiler forbids mixing workspace-control paths with
// versioned tree paths.
type BookkeepingPath struct {
	inner FilePath
}

// BookkeepingRootName is the reserved directory name for workspace
// control data. It is invalid as the name of a root-level versioned node
// (see InvalidNameConflict); elsewhere in the tree it is not flagged,
// preserved verbatim per spec.md §9's note on ambiguous source behavior.
const BookkeepingRootName PathComponent = "_MTN"

// NewBookkeepingPath validates that fp lives under the control directory.
func NewBookkeepingPath(fp FilePath) (BookkeepingPath, error) {
	if len(fp) == 0 || fp[0] != BookkeepingRootName {
		return BookkeepingPath{}, errors.Errorf("not a bookkeeping path: %q", fp.String())
	}
	return BookkeepingPath{inner: fp}, nil
}

func (b BookkeepingPath) FilePath() FilePath { return b.inner }
func (b BookkeepingPath) String() string     { return b.inner.String() }
