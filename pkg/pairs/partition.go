package pairs

import (
	"container/heap"
	"fmt"
)

// Partition splits pairs into exactly n groups balanced by weight using
// longest-processing-time-first greedy packing: pairs are taken largest first
// and each goes to the currently lightest group, ties going to the lowest
// group ID. Every group is then sorted largest first. Groups that receive no
// pairs are returned empty. The result depends only on the input order, n
// and unitWeight.
func Partition(input []FilePair, n int, unitWeight int64) ([]*Group, error) {
	if n < 1 {
		return nil, fmt.Errorf("partition count must be at least 1, got %d", n)
	}
	if unitWeight < 0 {
		return nil, fmt.Errorf("unit weight must not be negative, got %d", unitWeight)
	}

	sorted := make([]FilePair, len(input))
	copy(sorted, input)
	SortBySizeDesc(sorted)

	groups := make([]*Group, n)
	h := make(groupHeap, n)
	for i := range groups {
		groups[i] = NewGroup(i, unitWeight)
		h[i] = groups[i]
	}
	heap.Init(&h)

	for _, p := range sorted {
		lightest := h[0]
		lightest.Add(p)
		heap.Fix(&h, 0)
	}

	for _, g := range groups {
		g.Sort()
	}
	return groups, nil
}

// groupHeap is a min-heap of groups by (weight, ID).
type groupHeap []*Group

func (h groupHeap) Len() int { return len(h) }

func (h groupHeap) Less(i, j int) bool {
	wi, wj := h[i].Weight(), h[j].Weight()
	if wi != wj {
		return wi < wj
	}
	return h[i].ID < h[j].ID
}

func (h groupHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *groupHeap) Push(x any) { *h = append(*h, x.(*Group)) }

func (h *groupHeap) Pop() any {
	old := *h
	g := old[len(old)-1]
	*h = old[:len(old)-1]
	return g
}
