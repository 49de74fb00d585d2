// Package plan turns listings and diff results into the flat pair sets the
// partitioner consumes.
package plan

import (
	"fmt"

	"github.com/yuya-takeyama/strict-tree-sync/pkg/backend"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/listing"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/pairs"
)

// Action represents what will happen to one path.
type Action string

const (
	ActionCopy   Action = "copy"
	ActionMkdir  Action = "mkdir"
	ActionVerify Action = "verify"
	ActionSkip   Action = "skip"
	ActionReport Action = "report"
)

// Item is one line of a human-readable plan.
type Item struct {
	Action Action
	Path   string
	Size   int64
	Reason string
}

// Mapper resolves relative paths against a source and a destination base.
type Mapper struct {
	src  backend.Location
	dest backend.Location
}

func NewMapper(srcBase, destBase string) (*Mapper, error) {
	src, err := backend.Parse(srcBase)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	dest, err := backend.Parse(destBase)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	return &Mapper{src: src, dest: dest}, nil
}

// Pair builds the pair for one listing entry.
func (m *Mapper) Pair(e listing.DirEntry) pairs.FilePair {
	return pairs.FilePair{
		Src:    m.src.Join(e.Path).String(),
		Dest:   m.dest.Join(e.Path).String(),
		IsFile: e.IsFile,
		Size:   e.Size,
	}
}

// CopyPairs returns one pair per entry of the source listing, directory
// markers included so empty directories are replicated.
func (m *Mapper) CopyPairs(src *listing.Listing) []pairs.FilePair {
	out := make([]pairs.FilePair, 0, src.Len())
	for _, e := range src.Entries() {
		out = append(out, m.Pair(e))
	}
	return out
}

// MissingPairs returns pairs for entries the destination lacks or holds with
// different metadata.
func (m *Mapper) MissingPairs(result listing.DiffResult) []pairs.FilePair {
	var out []pairs.FilePair
	for _, mm := range result.Mismatched {
		if mm.Src == nil {
			continue
		}
		out = append(out, m.Pair(*mm.Src))
	}
	return out
}

// VerifyPairs returns pairs for matched files, the set whose content a
// checksum pass confirms.
func (m *Mapper) VerifyPairs(result listing.DiffResult) []pairs.FilePair {
	var out []pairs.FilePair
	for _, p := range result.Matched {
		if p.Src == nil || !p.Src.IsFile {
			continue
		}
		out = append(out, m.Pair(*p.Src))
	}
	return out
}

// Describe explains result as plan items. With copyMissing set, entries
// missing at the destination or differing in metadata are copied; otherwise
// they are reported.
func Describe(result listing.DiffResult, copyMissing bool) []Item {
	items := make([]Item, 0, len(result.Matched)+len(result.Mismatched))
	for _, mm := range result.Mismatched {
		item := Item{Path: mm.Path, Action: ActionReport, Reason: string(mm.Kind)}
		switch mm.Kind {
		case listing.MissingInSource:
			item.Size = mm.Dest.Size
		case listing.MissingInDest:
			item.Size = mm.Src.Size
			item.Reason = "missing in destination"
		case listing.MetadataDiffers:
			item.Size = mm.Src.Size
			item.Reason = fmt.Sprintf("metadata differs (source: %s, destination: %s)", mm.Src, mm.Dest)
		}
		if copyMissing && mm.Src != nil {
			item.Action = ActionCopy
			if !mm.Src.IsFile {
				item.Action = ActionMkdir
			}
		}
		items = append(items, item)
	}
	for _, p := range result.Matched {
		items = append(items, Item{Path: p.Path, Action: ActionSkip, Size: p.Src.Size, Reason: "metadata matches"})
	}
	return items
}
