package listing

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

type MismatchKind string

const (
	MissingInSource MismatchKind = "missing-in-source"
	MissingInDest   MismatchKind = "missing-in-destination"
	MetadataDiffers MismatchKind = "metadata-differs"
)

// EntryPair associates the source and destination entries for one relative
// path. Either side may be nil.
type EntryPair struct {
	Path string
	Src  *DirEntry
	Dest *DirEntry
}

type Mismatch struct {
	EntryPair
	Kind MismatchKind
}

// DiffResult is the classification of every compared path. Both slices are
// ordered by path.
type DiffResult struct {
	Matched    []EntryPair
	Mismatched []Mismatch
}

// Equal reports whether no mismatches were found.
func (r DiffResult) Equal() bool {
	return len(r.Mismatched) == 0
}

// Count returns the number of mismatches of the given kind.
func (r DiffResult) Count(kind MismatchKind) int {
	n := 0
	for _, m := range r.Mismatched {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

type DiffOptions struct {
	// IncludeDirs makes empty-directory markers take part in the comparison.
	// They are skipped by default.
	IncludeDirs bool
}

// Diff compares two listings by relative path using metadata only (isFile and
// size). File content is never read.
func Diff(src, dest *Listing, opts DiffOptions) DiffResult {
	paths := mapset.NewThreadUnsafeSet[string]()
	for p, e := range src.entries {
		if e.IsFile || opts.IncludeDirs {
			paths.Add(p)
		}
	}
	for p, e := range dest.entries {
		if e.IsFile || opts.IncludeDirs {
			paths.Add(p)
		}
	}

	ordered := paths.ToSlice()
	sort.Strings(ordered)

	result := DiffResult{
		Matched:    []EntryPair{},
		Mismatched: []Mismatch{},
	}
	for _, p := range ordered {
		pair := EntryPair{Path: p}
		if e, ok := src.entries[p]; ok && (e.IsFile || opts.IncludeDirs) {
			pair.Src = &e
		}
		if e, ok := dest.entries[p]; ok && (e.IsFile || opts.IncludeDirs) {
			pair.Dest = &e
		}

		switch {
		case pair.Src == nil:
			result.Mismatched = append(result.Mismatched, Mismatch{EntryPair: pair, Kind: MissingInSource})
		case pair.Dest == nil:
			result.Mismatched = append(result.Mismatched, Mismatch{EntryPair: pair, Kind: MissingInDest})
		case pair.Src.IsFile != pair.Dest.IsFile || pair.Src.Size != pair.Dest.Size:
			result.Mismatched = append(result.Mismatched, Mismatch{EntryPair: pair, Kind: MetadataDiffers})
		default:
			result.Matched = append(result.Matched, pair)
		}
	}
	return result
}
