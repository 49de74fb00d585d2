package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/yuya-takeyama/strict-tree-sync/internal/objstore"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/backend"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/checksum"
)

// ObjectStore serves locations on one bucket's client.
type ObjectStore struct {
	client objstore.Client
}

func NewObjectStore(client objstore.Client) *ObjectStore {
	return &ObjectStore{client: client}
}

func (s *ObjectStore) Kind() backend.Kind {
	return backend.ObjectStore
}

func (s *ObjectStore) Open(ctx context.Context, loc backend.Location) (io.ReadCloser, error) {
	return s.OpenRange(ctx, loc, 0, -1)
}

func (s *ObjectStore) OpenRange(ctx context.Context, loc backend.Location, off, n int64) (io.ReadCloser, error) {
	return s.client.Get(ctx, loc.Authority, loc.Path, off, n)
}

func (s *ObjectStore) Put(ctx context.Context, loc backend.Location, body io.Reader, size int64) error {
	if err := s.client.Put(ctx, loc.Authority, loc.Path, body, size); err != nil {
		return fmt.Errorf("put %s: %w", loc, err)
	}
	return nil
}

// MkdirAll writes an empty "key/" marker object. The bucket root needs none.
func (s *ObjectStore) MkdirAll(ctx context.Context, loc backend.Location) error {
	if loc.Path == "" {
		return nil
	}
	return s.Put(ctx, backend.Location{
		Kind:      loc.Kind,
		Scheme:    loc.Scheme,
		Authority: loc.Authority,
		Path:      loc.Path + "/",
	}, bytes.NewReader(nil), 0)
}

func (s *ObjectStore) StartMultipart(ctx context.Context, loc backend.Location) (Multipart, error) {
	uploadID, err := s.client.CreateMultipart(ctx, loc.Authority, loc.Path)
	if err != nil {
		return nil, fmt.Errorf("create multipart upload for %s: %w", loc, err)
	}
	return &objectMultipart{
		client:   s.client,
		bucket:   loc.Authority,
		key:      loc.Path,
		uploadID: uploadID,
		parts:    make(map[int32]objstore.Part),
	}, nil
}

// Checksum prefers the checksum the store reports and streams the object
// otherwise.
func (s *ObjectStore) Checksum(ctx context.Context, loc backend.Location) (string, error) {
	info, err := s.client.Head(ctx, loc.Authority, loc.Path)
	if err != nil {
		return "", fmt.Errorf("head %s: %w", loc, err)
	}
	if info.Checksum != "" {
		return info.Checksum, nil
	}

	body, err := s.client.Get(ctx, loc.Authority, loc.Path, 0, -1)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", loc, err)
	}
	defer body.Close()
	return checksum.Reader(body)
}

func (s *ObjectStore) Close() error {
	return nil
}

type objectMultipart struct {
	client   objstore.Client
	bucket   string
	key      string
	uploadID string

	mu sync.Mutex
	// Keyed by part number; a retried part replaces the earlier one.
	parts map[int32]objstore.Part
}

func (m *objectMultipart) UploadPart(ctx context.Context, number int32, body io.Reader, size int64) error {
	part, err := m.client.UploadPart(ctx, m.bucket, m.key, m.uploadID, number, body, size)
	if err != nil {
		return fmt.Errorf("upload part %d of %s: %w", number, m.key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parts[number] = part
	return nil
}

func (m *objectMultipart) Complete(ctx context.Context) error {
	m.mu.Lock()
	parts := make([]objstore.Part, 0, len(m.parts))
	for _, p := range m.parts {
		parts = append(parts, p)
	}
	m.mu.Unlock()

	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
	if err := m.client.CompleteMultipart(ctx, m.bucket, m.key, m.uploadID, parts); err != nil {
		return fmt.Errorf("complete multipart upload of %s: %w", m.key, err)
	}
	return nil
}

func (m *objectMultipart) Abort(ctx context.Context) error {
	if err := m.client.AbortMultipart(ctx, m.bucket, m.key, m.uploadID); err != nil {
		return fmt.Errorf("abort multipart upload of %s: %w", m.key, err)
	}
	return nil
}
