package walker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yuya-takeyama/strict-tree-sync/internal/objstore"
	"github.com/yuya-takeyama/strict-tree-sync/internal/retry"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/backend"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/listing"
)

// ObjectStoreWalker lists a key prefix page by page.
type ObjectStoreWalker struct {
	client   objstore.Client
	policy   retry.Policy
	excludes []string
}

func NewObjectStoreWalker(client objstore.Client, opts Options) *ObjectStoreWalker {
	policy := opts.Retry
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = listAttempts
	}
	if policy.Retryable == nil {
		policy.Retryable = objstore.IsRetryable
	}
	return &ObjectStoreWalker{
		client:   client,
		policy:   policy,
		excludes: opts.Excludes,
	}
}

// Walk pages through every key under base.
//
// When base names an object itself, the result is a one-entry listing based
// at its parent. Otherwise only keys below "base/" are listed, so siblings
// sharing the name as a prefix are never paged. A key ending in "/" is a
// directory marker and is kept only when nothing else lives below it, which
// is how a hierarchical filesystem reports empty directories.
func (w *ObjectStoreWalker) Walk(ctx context.Context, base backend.Location) (*listing.Listing, error) {
	bucket := base.Authority
	prefix := base.Path
	l := listing.New(base.String(), backend.ObjectStore)

	var (
		token   string
		marker  *string
		pages   int
		walkErr error
	)
	flushMarker := func(next string) {
		if marker == nil {
			return
		}
		if next == "" || !strings.HasPrefix(next, *marker) {
			walkErr = l.Add(listing.DirEntry{Path: *marker, IsFile: false})
		}
		marker = nil
	}

	listPrefix := ""
	if prefix != "" {
		info, err := w.head(ctx, bucket, prefix)
		if err != nil {
			return nil, &ListingError{Base: base.String(), Err: err}
		}
		if info != nil {
			return singleObject(base, info.Size)
		}
		listPrefix = prefix + "/"
	}

	for {
		var page *objstore.Page
		_, err := retry.Do(ctx, w.policy, func(ctx context.Context) error {
			var err error
			page, err = w.client.ListPage(ctx, bucket, listPrefix, token)
			if err != nil {
				slog.Warn("list page failed", "bucket", bucket, "prefix", listPrefix, "page", pages, "error", err)
			}
			return err
		})
		if err != nil {
			return nil, &ListingError{Base: base.String(), Err: err}
		}
		pages++

		for _, obj := range page.Objects {
			rel, ok := strings.CutPrefix(obj.Key, listPrefix)
			if !ok {
				continue
			}
			flushMarker(rel)
			if walkErr != nil {
				return nil, &ListingError{Base: base.String(), Err: walkErr}
			}
			if isExcluded(rel, w.excludes) {
				continue
			}

			if strings.HasSuffix(rel, "/") || rel == "" {
				m := rel
				marker = &m
				continue
			}
			if err := l.Add(listing.DirEntry{Path: rel, IsFile: true, Size: obj.Size}); err != nil {
				return nil, &ListingError{Base: base.String(), Err: err}
			}
		}

		if !page.Truncated {
			break
		}
		if page.NextToken == "" {
			return nil, &ListingError{Base: base.String(), Err: fmt.Errorf("truncated page %d carries no continuation token", pages)}
		}
		token = page.NextToken
	}

	flushMarker("")
	if walkErr != nil {
		return nil, &ListingError{Base: base.String(), Err: walkErr}
	}
	slog.Debug("listed object prefix", "bucket", bucket, "prefix", prefix, "pages", pages, "entries", l.Len())
	return l, nil
}

// head returns the object stored at key, or nil when there is none.
func (w *ObjectStoreWalker) head(ctx context.Context, bucket, key string) (*objstore.ObjectInfo, error) {
	var info *objstore.ObjectInfo
	_, err := retry.Do(ctx, w.policy, func(ctx context.Context) error {
		var err error
		info, err = w.client.Head(ctx, bucket, key)
		return err
	})
	if errors.Is(err, objstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", key, err)
	}
	return info, nil
}

func singleObject(base backend.Location, size int64) (*listing.Listing, error) {
	parent, name := base.Parent()
	l := listing.New(parent.String(), backend.ObjectStore)
	if err := l.Add(listing.DirEntry{Path: name, IsFile: true, Size: size}); err != nil {
		return nil, &ListingError{Base: base.String(), Err: err}
	}
	slog.Debug("base is a single object", "base", base.String(), "size", size)
	return l, nil
}
