package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffIdenticalTrees(t *testing.T) {
	entries := []DirEntry{
		{Path: "a.txt", IsFile: true, Size: 100},
		{Path: "dir/b.txt", IsFile: true, Size: 0},
		{Path: "empty/", IsFile: false},
	}
	src := newListing(t, "s3://bucket/base", entries...)
	dest := newListing(t, "hdfs://nn/base", entries...)

	for _, includeDirs := range []bool{false, true} {
		result := Diff(src, dest, DiffOptions{IncludeDirs: includeDirs})
		assert.True(t, result.Equal())
		assert.Empty(t, result.Mismatched)
	}
}

func TestDiffScenarioA(t *testing.T) {
	src := newListing(t, "s3://bucket/src",
		DirEntry{Path: "a", IsFile: true, Size: 100},
		DirEntry{Path: "b", IsFile: true, Size: 200},
	)
	dest := newListing(t, "hdfs://nn/dest",
		DirEntry{Path: "a", IsFile: true, Size: 100},
		DirEntry{Path: "c", IsFile: true, Size: 50},
	)

	result := Diff(src, dest, DiffOptions{})

	require.Len(t, result.Matched, 1)
	assert.Equal(t, "a", result.Matched[0].Path)

	require.Len(t, result.Mismatched, 2)
	assert.Equal(t, "b", result.Mismatched[0].Path)
	assert.Equal(t, MissingInDest, result.Mismatched[0].Kind)
	assert.Nil(t, result.Mismatched[0].Dest)
	assert.Equal(t, "c", result.Mismatched[1].Path)
	assert.Equal(t, MissingInSource, result.Mismatched[1].Kind)
	assert.Nil(t, result.Mismatched[1].Src)
}

func TestDiffMetadataDiffers(t *testing.T) {
	src := newListing(t, "s3://bucket/src",
		DirEntry{Path: "size.txt", IsFile: true, Size: 10},
		DirEntry{Path: "kind", IsFile: true, Size: 0},
	)
	dest := newListing(t, "s3://bucket/dest",
		DirEntry{Path: "size.txt", IsFile: true, Size: 11},
		DirEntry{Path: "kind/", IsFile: false},
	)

	result := Diff(src, dest, DiffOptions{})
	require.Len(t, result.Mismatched, 2)
	// "kind" (file) and "kind/" (dir marker) are different paths; the dir
	// marker is excluded by default so the file is missing in destination.
	assert.Equal(t, MissingInDest, result.Mismatched[0].Kind)
	assert.Equal(t, MetadataDiffers, result.Mismatched[1].Kind)
	assert.Equal(t, 1, result.Count(MetadataDiffers))
}

func TestDiffDirectoryMarkers(t *testing.T) {
	src := newListing(t, "s3://bucket/src",
		DirEntry{Path: "f", IsFile: true, Size: 1},
		DirEntry{Path: "only-src/", IsFile: false},
	)
	dest := newListing(t, "s3://bucket/dest",
		DirEntry{Path: "f", IsFile: true, Size: 1},
	)

	excluded := Diff(src, dest, DiffOptions{})
	assert.True(t, excluded.Equal())
	assert.Len(t, excluded.Matched, 1)

	included := Diff(src, dest, DiffOptions{IncludeDirs: true})
	require.Len(t, included.Mismatched, 1)
	assert.Equal(t, "only-src/", included.Mismatched[0].Path)
	assert.Equal(t, MissingInDest, included.Mismatched[0].Kind)
}
