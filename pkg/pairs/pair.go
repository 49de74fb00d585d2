// Package pairs models units of comparison or transfer work and splits them
// into balanced groups for parallel execution.
package pairs

import (
	"fmt"
	"sort"
)

// DefaultUnitWeight is the per-entry cost added to a group's byte volume.
const DefaultUnitWeight = 1000

// FilePair associates a source and a destination path for one file or
// directory entry. Either path may be empty when that side is absent, as for
// pairs built from a mismatch.
type FilePair struct {
	Src    string `json:"src"`
	Dest   string `json:"dest"`
	IsFile bool   `json:"is_file"`
	Size   int64  `json:"size"`
}

func (p FilePair) String() string {
	kind := "file"
	if !p.IsFile {
		kind = "dir"
	}
	return fmt.Sprintf("%s -> %s (%s, %d bytes)", p.Src, p.Dest, kind, p.Size)
}

// Weight is the pair's contribution to a group weight.
func (p FilePair) Weight(unitWeight int64) int64 {
	if p.IsFile {
		return unitWeight + p.Size
	}
	return unitWeight
}

// TotalWeight sums the weights of pairs.
func TotalWeight(pairs []FilePair, unitWeight int64) int64 {
	var total int64
	for _, p := range pairs {
		total += p.Weight(unitWeight)
	}
	return total
}

// SortBySizeDesc orders pairs largest first. Pairs of equal size keep their
// relative order.
func SortBySizeDesc(pairs []FilePair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Size > pairs[j].Size
	})
}
