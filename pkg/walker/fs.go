package walker

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/yuya-takeyama/strict-tree-sync/internal/fsys"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/backend"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/listing"
	"golang.org/x/sync/errgroup"
)

// FSWalker lists a hierarchical filesystem breadth first. Directories of one
// level are listed concurrently, bounded by Options.Workers.
type FSWalker struct {
	fs       fsys.FileSystem
	workers  int
	excludes []string
}

func NewFSWalker(fs fsys.FileSystem, opts Options) *FSWalker {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &FSWalker{fs: fs, workers: workers, excludes: opts.Excludes}
}

type dirResult struct {
	entries []listing.DirEntry
	subdirs []string
}

// Walk lists base. A directory without children is recorded as an
// empty-directory entry; a base that is a file yields a one-entry listing
// based at its parent. Any unreadable path fails the whole walk.
func (w *FSWalker) Walk(ctx context.Context, base backend.Location) (*listing.Listing, error) {
	info, err := w.fs.Stat(base.Path)
	if err != nil {
		return nil, &ListingError{Base: base.String(), Err: err}
	}
	if !info.IsDir() {
		parent, name := base.Parent()
		l := listing.New(parent.String(), backend.HierarchicalFS)
		if err := l.Add(listing.DirEntry{Path: name, IsFile: true, Size: info.Size()}); err != nil {
			return nil, &ListingError{Base: base.String(), Err: err}
		}
		return l, nil
	}

	l := listing.New(base.String(), backend.HierarchicalFS)
	level := []string{base.Path}
	for len(level) > 0 {
		results := make([]dirResult, len(level))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.workers)
		for i, dir := range level {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := w.listDir(base.Path, dir)
				if err != nil {
					return &ListingError{Base: base.String(), Err: fmt.Errorf("read %s: %w", dir, err)}
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for _, res := range results {
			for _, e := range res.entries {
				if err := l.Add(e); err != nil {
					return nil, &ListingError{Base: base.String(), Err: err}
				}
			}
			next = append(next, res.subdirs...)
		}
		level = next
	}
	return l, nil
}

func (w *FSWalker) listDir(root, dir string) (dirResult, error) {
	children, err := w.fs.ReadDir(dir)
	if err != nil {
		return dirResult{}, err
	}

	var res dirResult
	if len(children) == 0 {
		rel := relativePath(root, dir)
		if !isExcluded(rel, w.excludes) {
			res.entries = append(res.entries, listing.DirEntry{Path: rel, IsFile: false})
		}
		return res, nil
	}

	for _, child := range children {
		full := path.Join(dir, child.Name())
		rel := relativePath(root, full)
		if child.IsDir() {
			if excludesDir(rel, w.excludes) {
				continue
			}
			res.subdirs = append(res.subdirs, full)
			continue
		}
		if isExcluded(rel, w.excludes) {
			continue
		}
		res.entries = append(res.entries, listing.DirEntry{Path: rel, IsFile: true, Size: child.Size()})
	}
	return res, nil
}

// excludesDir reports whether a directory pattern (one ending in "/") covers
// rel, so the whole subtree can be skipped without listing it.
func excludesDir(rel string, excludes []string) bool {
	var dirPatterns []string
	for _, p := range excludes {
		if strings.HasSuffix(p, "/") {
			dirPatterns = append(dirPatterns, p)
		}
	}
	return isExcluded(rel, dirPatterns)
}

func relativePath(root, full string) string {
	if root == "/" {
		return strings.TrimPrefix(full, "/")
	}
	return strings.TrimPrefix(strings.TrimPrefix(full, root), "/")
}
