// Package storage is the data plane the executor and staging use: reads,
// single-shot and multipart writes, directory creation and content checksums
// on either backend kind, addressed by backend.Location.
package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/yuya-takeyama/strict-tree-sync/internal/fsys"
	"github.com/yuya-takeyama/strict-tree-sync/internal/objstore"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/backend"
)

// Store performs data operations against one backend endpoint.
type Store interface {
	Kind() backend.Kind
	Open(ctx context.Context, loc backend.Location) (io.ReadCloser, error)
	// OpenRange reads n bytes starting at off. A negative n reads to the end.
	OpenRange(ctx context.Context, loc backend.Location, off, n int64) (io.ReadCloser, error)
	Put(ctx context.Context, loc backend.Location, body io.Reader, size int64) error
	MkdirAll(ctx context.Context, loc backend.Location) error
	StartMultipart(ctx context.Context, loc backend.Location) (Multipart, error)
	// Checksum returns the base64 CRC64NVME of the content at loc.
	Checksum(ctx context.Context, loc backend.Location) (string, error)
	Close() error
}

// Multipart assembles one object from independently written parts. Parts are
// numbered from 1 and committed in number order.
type Multipart interface {
	UploadPart(ctx context.Context, number int32, body io.Reader, size int64) error
	Complete(ctx context.Context) error
	Abort(ctx context.Context) error
}

// Resolver opens sessions on the configured backends.
type Resolver struct {
	ObjectStores objstore.Factory
	FileSystems  fsys.Factory
}

// NewSession returns a session that lazily opens one store per endpoint and
// reuses it for every later call. A session must not be shared between
// goroutines.
func (r *Resolver) NewSession() *Session {
	return &Session{resolver: r, stores: make(map[string]Store)}
}

type Session struct {
	resolver *Resolver

	mu     sync.Mutex
	stores map[string]Store
}

// For returns the store serving loc.
func (s *Session) For(ctx context.Context, loc backend.Location) (Store, error) {
	key := loc.Scheme + "://" + loc.Authority
	if loc.Kind == backend.ObjectStore {
		// s3, s3a and s3n name the same bucket.
		key = "s3://" + loc.Authority
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stores[key]; ok {
		return st, nil
	}

	var (
		st  Store
		err error
	)
	switch loc.Kind {
	case backend.ObjectStore:
		var client objstore.Client
		client, err = s.resolver.ObjectStores.NewClient(ctx, loc.Authority)
		if err == nil {
			st = NewObjectStore(client)
		}
	case backend.HierarchicalFS:
		var fs fsys.FileSystem
		fs, err = s.resolver.FileSystems.Open(loc.Scheme, loc.Authority)
		if err == nil {
			st = NewFileSystem(fs)
		}
	default:
		err = fmt.Errorf("%w: %s", backend.ErrUnsupportedBackend, loc)
	}
	if err != nil {
		return nil, fmt.Errorf("open store for %s: %w", key, err)
	}
	s.stores[key] = st
	return st, nil
}

// Close closes every store the session opened.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for key, st := range s.stores {
		if err := st.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.stores, key)
	}
	return firstErr
}
