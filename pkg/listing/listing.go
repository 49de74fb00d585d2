// Package listing holds normalized directory-tree snapshots and the
// path-keyed comparison between two of them.
package listing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/backend"
)

// ErrDuplicatePath is returned by Add when the relative path is already
// present in the listing. The first entry is kept.
var ErrDuplicatePath = errors.New("duplicate path in listing")

// DirEntry is one file or empty-directory marker in a listing.
//
// Path is relative to the listing base, has no leading slash and ends in a
// slash only for empty-directory markers.
type DirEntry struct {
	Path     string
	IsFile   bool
	Size     int64
	Checksum string
}

// IsDirMarker reports whether the entry is an empty-directory placeholder.
func (e DirEntry) IsDirMarker() bool {
	return !e.IsFile
}

func (e DirEntry) String() string {
	if e.IsFile {
		return fmt.Sprintf("%s (%d bytes)", e.Path, e.Size)
	}
	return e.Path + " (dir)"
}

// NormalizePath converts a relative path to listing form: forward slashes and
// no leading slash. A trailing slash is kept only when dir is true.
func NormalizePath(p string, dir bool) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	p = strings.TrimRight(p, "/")
	if dir && p != "" {
		return p + "/"
	}
	return p
}

// Listing is the result of walking one directory tree. It is populated by a
// walker and treated as read-only afterwards.
type Listing struct {
	Base    string
	Kind    backend.Kind
	entries map[string]DirEntry
}

func New(base string, kind backend.Kind) *Listing {
	return &Listing{
		Base:    base,
		Kind:    kind,
		entries: make(map[string]DirEntry),
	}
}

// Add records an entry under its normalized path.
func (l *Listing) Add(e DirEntry) error {
	e.Path = NormalizePath(e.Path, !e.IsFile)
	if !e.IsFile {
		e.Size = 0
	}
	if _, exists := l.entries[e.Path]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, e.Path)
	}
	l.entries[e.Path] = e
	return nil
}

func (l *Listing) Get(path string) (DirEntry, bool) {
	e, ok := l.entries[path]
	return e, ok
}

func (l *Listing) Len() int {
	return len(l.entries)
}

// Paths returns every relative path in lexical order.
func (l *Listing) Paths() []string {
	paths := make([]string, 0, len(l.entries))
	for p := range l.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Entries returns every entry ordered by path.
func (l *Listing) Entries() []DirEntry {
	entries := make([]DirEntry, 0, len(l.entries))
	for _, p := range l.Paths() {
		entries = append(entries, l.entries[p])
	}
	return entries
}

// Stats returns the number of files, directory markers and total file bytes.
func (l *Listing) Stats() (files, dirs, bytes int64) {
	for _, e := range l.entries {
		if e.IsFile {
			files++
			bytes += e.Size
		} else {
			dirs++
		}
	}
	return files, dirs, bytes
}

func (l *Listing) String() string {
	files, dirs, bytes := l.Stats()
	return fmt.Sprintf("%s (%s): %d files, %d dirs, %s",
		l.Base, l.Kind, files, dirs, humanize.Bytes(uint64(bytes)))
}
