package pairs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupAggregates(t *testing.T) {
	g := NewGroup(3, DefaultUnitWeight)
	g.Add(filePair("big", 5000))
	g.Add(filePair("empty", 0))
	g.Add(FilePair{Src: "s3://b/src/dir/", Dest: "/dst/dir/"})

	assert.Equal(t, int64(2), g.FileCount)
	assert.Equal(t, int64(1), g.DirCount)
	assert.Equal(t, int64(5000), g.TotalBytes)
	assert.Equal(t, int64(1), g.EmptyFileCount)
	assert.Equal(t, int64(3*DefaultUnitWeight+5000), g.Weight())
	assert.Equal(t, "group 3: 2 files, 1 dirs, 5.0 kB (empty 1)", g.Summary())
}

func TestGroupSortIsStable(t *testing.T) {
	g := NewGroup(0, DefaultUnitWeight)
	g.Add(filePair("a", 10))
	g.Add(filePair("b", 30))
	g.Add(filePair("c", 10))
	g.Add(filePair("d", 20))
	g.Sort()

	var names []string
	for _, p := range g.Pairs {
		names = append(names, p.Src[len("s3://b/src/"):])
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, names)
}

func TestFilePairWeight(t *testing.T) {
	assert.Equal(t, int64(1100), filePair("f", 100).Weight(1000))
	assert.Equal(t, int64(1000), FilePair{}.Weight(1000))
	assert.Equal(t, int64(100), filePair("f", 100).Weight(0))
}
