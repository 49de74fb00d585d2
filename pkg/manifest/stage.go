package manifest

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/backend"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/pairs"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/storage"
)

// NewRunID returns a fresh identifier for a staging directory.
func NewRunID() string {
	return uuid.NewString()
}

// GroupPath returns where group id of a run is staged beneath dir.
func GroupPath(dir, runID string, id int) (string, error) {
	return backend.Join(dir, fmt.Sprintf("%s/group-%05d.jsonl", runID, id))
}

// Stage writes every group beneath dir/runID and returns the staged paths in
// group order.
func Stage(ctx context.Context, sess *storage.Session, dir, runID string, groups []*pairs.Group) ([]string, error) {
	paths := make([]string, 0, len(groups))
	for _, g := range groups {
		p, err := GroupPath(dir, runID, g.ID)
		if err != nil {
			return nil, err
		}
		loc, err := backend.Parse(p)
		if err != nil {
			return nil, err
		}
		st, err := sess.For(ctx, loc)
		if err != nil {
			return nil, err
		}

		var buf bytes.Buffer
		if err := WriteGroup(&buf, g); err != nil {
			return nil, err
		}
		if err := st.Put(ctx, loc, bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
			return nil, fmt.Errorf("stage group %d: %w", g.ID, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Load reads a staged group.
func Load(ctx context.Context, sess *storage.Session, path string) ([]pairs.FilePair, error) {
	loc, err := backend.Parse(path)
	if err != nil {
		return nil, err
	}
	st, err := sess.For(ctx, loc)
	if err != nil {
		return nil, err
	}
	rc, err := st.Open(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("open group %s: %w", path, err)
	}
	defer rc.Close()

	ps, err := ReadGroup(rc)
	if err != nil {
		return nil, fmt.Errorf("read group %s: %w", path, err)
	}
	return ps, nil
}
