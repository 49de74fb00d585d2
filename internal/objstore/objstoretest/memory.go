// Package objstoretest provides an in-memory objstore.Client with failure
// injection for tests.
package objstoretest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/yuya-takeyama/strict-tree-sync/internal/objstore"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/checksum"
)

// Operation names passed to FailFunc.
const (
	OpList     = "list"
	OpHead     = "head"
	OpGet      = "get"
	OpPut      = "put"
	OpCreate   = "create-multipart"
	OpPart     = "upload-part"
	OpComplete = "complete-multipart"
	OpAbort    = "abort-multipart"
)

type upload struct {
	bucket string
	key    string
	parts  map[int32][]byte
}

// Memory is a thread-safe in-memory object store.
type Memory struct {
	// PageSize bounds the number of keys per listing page. Zero means 1000.
	PageSize int
	// ReportChecksums makes Head return the CRC64NVME of the object.
	ReportChecksums bool
	// FailFunc, when set, is consulted before every operation. A non-nil
	// return value is returned to the caller instead of performing it.
	FailFunc func(op, bucket, key string) error

	mu      sync.Mutex
	objects map[string][]byte
	uploads map[string]*upload
	nextID  int
	calls   map[string]int
	aborted []string
}

func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string][]byte),
		uploads: make(map[string]*upload),
		calls:   make(map[string]int),
	}
}

func objectID(bucket, key string) string {
	return bucket + "/" + key
}

// Store puts data under bucket/key without going through FailFunc.
func (m *Memory) Store(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectID(bucket, key)] = append([]byte(nil), data...)
}

// Object returns a copy of the stored data.
func (m *Memory) Object(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectID(bucket, key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Keys returns every key in bucket in lexical order.
func (m *Memory) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keysLocked(bucket, "")
}

// Calls returns how many times op was invoked, failed attempts included.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Aborted returns the keys whose multipart uploads were aborted.
func (m *Memory) Aborted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.aborted...)
}

// OpenUploads returns the number of multipart uploads neither completed nor
// aborted.
func (m *Memory) OpenUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

func (m *Memory) keysLocked(bucket, prefix string) []string {
	var keys []string
	for id := range m.objects {
		b, key, _ := strings.Cut(id, "/")
		if b == bucket && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) enter(op, bucket, key string) error {
	m.mu.Lock()
	m.calls[op]++
	fail := m.FailFunc
	m.mu.Unlock()
	if fail != nil {
		return fail(op, bucket, key)
	}
	return nil
}

func (m *Memory) ListPage(ctx context.Context, bucket, prefix, token string) (*objstore.Page, error) {
	if err := m.enter(OpList, bucket, prefix); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pageSize := m.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	start := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Errorf("invalid continuation token %q", token)
		}
		start = n
	}

	keys := m.keysLocked(bucket, prefix)
	end := start + pageSize
	if end > len(keys) {
		end = len(keys)
	}
	page := &objstore.Page{}
	if start < len(keys) {
		for _, key := range keys[start:end] {
			page.Objects = append(page.Objects, objstore.Object{
				Key:  key,
				Size: int64(len(m.objects[objectID(bucket, key)])),
			})
		}
	}
	if end < len(keys) {
		page.Truncated = true
		page.NextToken = strconv.Itoa(end)
	}
	return page, nil
}

func (m *Memory) Head(ctx context.Context, bucket, key string) (*objstore.ObjectInfo, error) {
	if err := m.enter(OpHead, bucket, key); err != nil {
		return nil, err
	}
	data, ok := m.Object(bucket, key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", objstore.ErrNotFound, key)
	}
	info := &objstore.ObjectInfo{Size: int64(len(data))}
	if m.ReportChecksums {
		info.Checksum = checksum.Bytes(data)
	}
	return info, nil
}

func (m *Memory) Get(ctx context.Context, bucket, key string, off, n int64) (io.ReadCloser, error) {
	if err := m.enter(OpGet, bucket, key); err != nil {
		return nil, err
	}
	data, ok := m.Object(bucket, key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", objstore.ErrNotFound, key)
	}
	if off > int64(len(data)) {
		off = int64(len(data))
	}
	data = data[off:]
	if n >= 0 && n < int64(len(data)) {
		data = data[:n]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Put(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	if err := m.enter(OpPut, bucket, key); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("put %s: body has %d bytes, declared %d", key, len(data), size)
	}
	m.Store(bucket, key, data)
	return nil
}

func (m *Memory) CreateMultipart(ctx context.Context, bucket, key string) (string, error) {
	if err := m.enter(OpCreate, bucket, key); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("upload-%d", m.nextID)
	m.uploads[id] = &upload{bucket: bucket, key: key, parts: make(map[int32][]byte)}
	return id, nil
}

func (m *Memory) UploadPart(ctx context.Context, bucket, key, uploadID string, number int32, body io.Reader, size int64) (objstore.Part, error) {
	if err := m.enter(OpPart, bucket, key); err != nil {
		return objstore.Part{}, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return objstore.Part{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[uploadID]
	if !ok {
		return objstore.Part{}, fmt.Errorf("no such upload %s", uploadID)
	}
	u.parts[number] = data
	return objstore.Part{
		Number:   number,
		ETag:     fmt.Sprintf("etag-%d", number),
		Checksum: checksum.Bytes(data),
	}, nil
}

func (m *Memory) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []objstore.Part) error {
	if err := m.enter(OpComplete, bucket, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[uploadID]
	if !ok {
		return fmt.Errorf("no such upload %s", uploadID)
	}
	var buf bytes.Buffer
	for i, p := range parts {
		if p.Number != int32(i+1) {
			return fmt.Errorf("parts out of order: got %d at position %d", p.Number, i)
		}
		data, ok := u.parts[p.Number]
		if !ok {
			return fmt.Errorf("part %d was never uploaded", p.Number)
		}
		buf.Write(data)
	}
	m.objects[objectID(u.bucket, u.key)] = buf.Bytes()
	delete(m.uploads, uploadID)
	return nil
}

func (m *Memory) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	if err := m.enter(OpAbort, bucket, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, uploadID)
	m.aborted = append(m.aborted, key)
	return nil
}
