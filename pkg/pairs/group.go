package pairs

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Group is an ordered set of pairs with running aggregates. A group is owned
// by one goroutine while it is being filled.
type Group struct {
	ID             int
	Pairs          []FilePair
	FileCount      int64
	DirCount       int64
	TotalBytes     int64
	EmptyFileCount int64

	unitWeight int64
}

func NewGroup(id int, unitWeight int64) *Group {
	return &Group{ID: id, unitWeight: unitWeight}
}

// Add appends p and updates the aggregates.
func (g *Group) Add(p FilePair) {
	g.Pairs = append(g.Pairs, p)
	if !p.IsFile {
		g.DirCount++
		return
	}
	g.FileCount++
	g.TotalBytes += p.Size
	if p.Size == 0 {
		g.EmptyFileCount++
	}
}

// Weight is fileCount*K + dirCount*K + totalBytes.
func (g *Group) Weight() int64 {
	return (g.FileCount+g.DirCount)*g.unitWeight + g.TotalBytes
}

func (g *Group) Len() int {
	return len(g.Pairs)
}

// Sort orders the group's pairs largest first so the biggest transfers start
// first.
func (g *Group) Sort() {
	SortBySizeDesc(g.Pairs)
}

func (g *Group) Summary() string {
	return fmt.Sprintf("group %d: %d files, %d dirs, %s (empty %d)",
		g.ID, g.FileCount, g.DirCount, humanize.Bytes(uint64(g.TotalBytes)), g.EmptyFileCount)
}
