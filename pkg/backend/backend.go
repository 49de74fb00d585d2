// Package backend classifies backend-qualified paths and splits them into
// their scheme, authority and path components.
package backend

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

type Kind int

const (
	Unknown Kind = iota
	ObjectStore
	HierarchicalFS
)

func (k Kind) String() string {
	switch k {
	case ObjectStore:
		return "object-store"
	case HierarchicalFS:
		return "hierarchical-fs"
	default:
		return "unknown"
	}
}

// ErrUnsupportedBackend is returned when a path does not name one of the two
// supported backend kinds.
var ErrUnsupportedBackend = errors.New("unsupported backend")

var schemeKinds = map[string]Kind{
	"s3":   ObjectStore,
	"s3a":  ObjectStore,
	"s3n":  ObjectStore,
	"hdfs": HierarchicalFS,
	"file": HierarchicalFS,
}

// Classify maps a path string to a backend kind by its URI scheme. Bare
// absolute paths are treated as local filesystem paths.
func Classify(p string) Kind {
	scheme, _, found := strings.Cut(p, "://")
	if !found {
		if strings.HasPrefix(p, "/") {
			return HierarchicalFS
		}
		return Unknown
	}
	if kind, ok := schemeKinds[strings.ToLower(scheme)]; ok {
		return kind
	}
	return Unknown
}

// Location is a parsed backend-qualified path.
//
// For object stores Authority is the bucket and Path is the key prefix with
// no leading or trailing slash. For filesystems Authority is the namenode
// address (empty for local paths) and Path is absolute and cleaned.
type Location struct {
	Kind      Kind
	Scheme    string
	Authority string
	Path      string
}

// Parse splits p into a Location. Trailing slashes are stripped.
func Parse(p string) (Location, error) {
	kind := Classify(p)
	if kind == Unknown {
		return Location{}, fmt.Errorf("%w: %q", ErrUnsupportedBackend, p)
	}

	scheme, rest, found := strings.Cut(p, "://")
	if !found {
		return Location{Kind: kind, Scheme: "file", Path: cleanAbs(p)}, nil
	}
	scheme = strings.ToLower(scheme)

	authority, rawPath, _ := strings.Cut(rest, "/")
	loc := Location{Kind: kind, Scheme: scheme, Authority: authority}

	switch kind {
	case ObjectStore:
		if authority == "" {
			return Location{}, fmt.Errorf("invalid object store path %q: missing bucket name", p)
		}
		loc.Path = strings.Trim(path.Clean("/"+rawPath), "/")
	case HierarchicalFS:
		// hdfs:///path leaves Authority empty and uses the configured namenode.
		loc.Path = cleanAbs("/" + rawPath)
	}
	return loc, nil
}

func cleanAbs(p string) string {
	return path.Clean("/" + strings.TrimLeft(p, "/"))
}

// Key returns the object key (or filesystem path) for a relative path
// beneath the location.
func (l Location) Key(rel string) string {
	rel = strings.Trim(rel, "/")
	if l.Kind == ObjectStore {
		if l.Path == "" {
			return rel
		}
		if rel == "" {
			return l.Path
		}
		return l.Path + "/" + rel
	}
	return path.Join(l.Path, rel)
}

// Join returns the location of rel beneath l.
func (l Location) Join(rel string) Location {
	joined := l
	joined.Path = l.Key(rel)
	return joined
}

// Parent returns the directory containing l and the final path element.
func (l Location) Parent() (Location, string) {
	parent := l
	if l.Kind == ObjectStore {
		idx := strings.LastIndex(l.Path, "/")
		if idx < 0 {
			parent.Path = ""
			return parent, l.Path
		}
		parent.Path = l.Path[:idx]
		return parent, l.Path[idx+1:]
	}
	parent.Path = path.Dir(l.Path)
	return parent, path.Base(l.Path)
}

// String renders the location as a backend-qualified path with no trailing
// slash.
func (l Location) String() string {
	switch l.Kind {
	case ObjectStore:
		if l.Path == "" {
			return l.Scheme + "://" + l.Authority
		}
		return l.Scheme + "://" + l.Authority + "/" + l.Path
	case HierarchicalFS:
		return l.Scheme + "://" + l.Authority + l.Path
	default:
		return ""
	}
}

// Normalize strips trailing slashes from a backend-qualified path while
// keeping the scheme separator intact.
func Normalize(p string) string {
	loc, err := Parse(p)
	if err != nil {
		return strings.TrimRight(p, "/")
	}
	return loc.String()
}

// Join is a convenience for Parse(base).Join(rel).String().
func Join(base, rel string) (string, error) {
	loc, err := Parse(base)
	if err != nil {
		return "", err
	}
	return loc.Join(rel).String(), nil
}

// RequireSupported returns ErrUnsupportedBackend unless every path names an
// object store or a hierarchical filesystem.
func RequireSupported(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			return fmt.Errorf("%w: empty path", ErrUnsupportedBackend)
		}
		if Classify(p) == Unknown {
			return fmt.Errorf("%w: %q", ErrUnsupportedBackend, p)
		}
	}
	return nil
}
