// Package walker produces complete listings of a directory tree on either
// backend kind. Both variants key entries by the same normalized relative
// path so listings from different backends compare directly.
package walker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yuya-takeyama/strict-tree-sync/internal/fsys"
	"github.com/yuya-takeyama/strict-tree-sync/internal/objstore"
	"github.com/yuya-takeyama/strict-tree-sync/internal/retry"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/backend"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/listing"
)

// listAttempts bounds retries of a single listing page.
const listAttempts = 3

// Walker lists one directory tree.
type Walker interface {
	Walk(ctx context.Context, base backend.Location) (*listing.Listing, error)
}

// ListingError reports a walk that could not produce a complete listing.
type ListingError struct {
	Base string
	Err  error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("list %s: %v", e.Base, e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}

// Options are shared by both walker variants.
type Options struct {
	// Excludes are doublestar patterns matched against relative paths. A
	// pattern ending in "/" excludes a directory and everything below it.
	Excludes []string
	// Retry bounds listing-page retries on the object store. MaxAttempts
	// defaults to 3 and Retryable to objstore.IsRetryable.
	Retry retry.Policy
	// Workers is the number of directories listed concurrently on a
	// hierarchical filesystem. Zero means 1.
	Workers int
}

// Sources opens the backend sessions a walk needs.
type Sources struct {
	ObjectStores objstore.Factory
	FileSystems  fsys.Factory
}

// Walk lists base with the variant matching its backend kind.
func Walk(ctx context.Context, base string, src Sources, opts Options) (*listing.Listing, error) {
	loc, err := backend.Parse(base)
	if err != nil {
		return nil, err
	}

	var (
		l       *listing.Listing
		walkErr error
	)
	switch loc.Kind {
	case backend.ObjectStore:
		client, err := src.ObjectStores.NewClient(ctx, loc.Authority)
		if err != nil {
			return nil, &ListingError{Base: base, Err: err}
		}
		l, walkErr = NewObjectStoreWalker(client, opts).Walk(ctx, loc)
	case backend.HierarchicalFS:
		fs, err := src.FileSystems.Open(loc.Scheme, loc.Authority)
		if err != nil {
			return nil, &ListingError{Base: base, Err: err}
		}
		defer fs.Close()
		l, walkErr = NewFSWalker(fs, opts).Walk(ctx, loc)
	default:
		return nil, fmt.Errorf("%w: %q", backend.ErrUnsupportedBackend, base)
	}
	if walkErr != nil {
		return nil, walkErr
	}

	files, dirs, bytes := l.Stats()
	slog.Info("walk complete", "base", l.Base, "kind", l.Kind.String(), "files", files, "dirs", dirs, "bytes", bytes)
	return l, nil
}
