package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuya-takeyama/strict-tree-sync/internal/fsys"
	"github.com/yuya-takeyama/strict-tree-sync/internal/objstore"
	"github.com/yuya-takeyama/strict-tree-sync/internal/objstore/objstoretest"
	"github.com/yuya-takeyama/strict-tree-sync/internal/retry"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/backend"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/checksum"
)

func mustParse(t *testing.T, p string) backend.Location {
	t.Helper()
	loc, err := backend.Parse(p)
	require.NoError(t, err)
	return loc
}

func readAll(t *testing.T, rc io.ReadCloser, err error) string {
	t.Helper()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func newStores() (*objstoretest.Memory, *fsys.Billy, map[string]Store) {
	mem := objstoretest.NewMemory()
	local := fsys.NewBilly(memfs.New())
	return mem, local, map[string]Store{
		"object-store": NewObjectStore(mem),
		"filesystem":   NewFileSystem(local),
	}
}

func locFor(t *testing.T, name, rel string) backend.Location {
	if name == "object-store" {
		return mustParse(t, "s3://bucket/"+rel)
	}
	return mustParse(t, "file:///"+rel)
}

func TestStorePutOpenRange(t *testing.T) {
	ctx := context.Background()
	_, _, stores := newStores()

	for name, st := range stores {
		t.Run(name, func(t *testing.T) {
			loc := locFor(t, name, "dir/sub/file.txt")
			require.NoError(t, st.Put(ctx, loc, strings.NewReader("hello world"), 11))

			rc, err := st.Open(ctx, loc)
			assert.Equal(t, "hello world", readAll(t, rc, err))

			rc, err = st.OpenRange(ctx, loc, 6, 5)
			assert.Equal(t, "world", readAll(t, rc, err))

			rc, err = st.OpenRange(ctx, loc, 6, -1)
			assert.Equal(t, "world", readAll(t, rc, err))

			sum, err := st.Checksum(ctx, loc)
			require.NoError(t, err)
			assert.Equal(t, checksum.Bytes([]byte("hello world")), sum)
		})
	}
}

func TestStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	_, _, stores := newStores()

	for name, st := range stores {
		t.Run(name, func(t *testing.T) {
			loc := locFor(t, name, "file.txt")
			require.NoError(t, st.Put(ctx, loc, strings.NewReader("first version"), 13))
			require.NoError(t, st.Put(ctx, loc, strings.NewReader("second"), 6))

			rc, err := st.Open(ctx, loc)
			assert.Equal(t, "second", readAll(t, rc, err))
		})
	}
}

func TestStoreMultipart(t *testing.T) {
	ctx := context.Background()
	_, _, stores := newStores()

	for name, st := range stores {
		t.Run(name, func(t *testing.T) {
			loc := locFor(t, name, "big/file.bin")
			mp, err := st.StartMultipart(ctx, loc)
			require.NoError(t, err)

			// Upload out of order and retry part 2 to check ordering and
			// replacement.
			require.NoError(t, mp.UploadPart(ctx, 3, strings.NewReader("ccc"), 3))
			require.NoError(t, mp.UploadPart(ctx, 1, strings.NewReader("aaa"), 3))
			require.NoError(t, mp.UploadPart(ctx, 2, strings.NewReader("xxx"), 3))
			require.NoError(t, mp.UploadPart(ctx, 2, strings.NewReader("bbb"), 3))
			require.NoError(t, mp.Complete(ctx))

			rc, err := st.Open(ctx, loc)
			assert.Equal(t, "aaabbbccc", readAll(t, rc, err))
		})
	}
}

func TestObjectStoreMultipartAbort(t *testing.T) {
	ctx := context.Background()
	mem := objstoretest.NewMemory()
	st := NewObjectStore(mem)
	loc := mustParse(t, "s3://bucket/key")

	mp, err := st.StartMultipart(ctx, loc)
	require.NoError(t, err)
	require.NoError(t, mp.UploadPart(ctx, 1, strings.NewReader("a"), 1))
	require.NoError(t, mp.Abort(ctx))

	assert.Equal(t, []string{"key"}, mem.Aborted())
	assert.Equal(t, 0, mem.OpenUploads())
	_, ok := mem.Object("bucket", "key")
	assert.False(t, ok)
}

func TestFileSystemMultipartAbortAndGaps(t *testing.T) {
	ctx := context.Background()
	local := fsys.NewBilly(memfs.New())
	st := NewFileSystem(local)
	loc := mustParse(t, "/out/file.bin")

	mp, err := st.StartMultipart(ctx, loc)
	require.NoError(t, err)
	require.NoError(t, mp.UploadPart(ctx, 1, strings.NewReader("a"), 1))
	require.NoError(t, mp.UploadPart(ctx, 3, strings.NewReader("c"), 1))
	assert.ErrorContains(t, mp.Complete(ctx), "missing part 2")

	require.NoError(t, mp.Abort(ctx))
	entries, err := local.ReadDir("/out")
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial files left behind")
}

func TestFileSystemPutShortWrite(t *testing.T) {
	ctx := context.Background()
	local := fsys.NewBilly(memfs.New())
	st := NewFileSystem(local)
	loc := mustParse(t, "/out/file.txt")

	err := st.Put(ctx, loc, strings.NewReader("abc"), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShortWrite)
	assert.True(t, IsRetryable(err))

	_, err = local.Stat("/out/file.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = local.Stat("/out/file.txt" + copyingSuffix)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestMkdirAll(t *testing.T) {
	ctx := context.Background()
	mem, local, _ := newStores()

	require.NoError(t, NewObjectStore(mem).MkdirAll(ctx, mustParse(t, "s3://bucket/a/empty")))
	require.NoError(t, NewObjectStore(mem).MkdirAll(ctx, mustParse(t, "s3://bucket")))
	assert.Equal(t, []string{"a/empty/"}, mem.Keys("bucket"))

	require.NoError(t, NewFileSystem(local).MkdirAll(ctx, mustParse(t, "/a/empty")))
	info, err := local.Stat("/a/empty")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestObjectStoreChecksumPrefersHead(t *testing.T) {
	ctx := context.Background()
	mem := objstoretest.NewMemory()
	mem.ReportChecksums = true
	mem.Store("bucket", "k", []byte("data"))
	st := NewObjectStore(mem)

	sum, err := st.Checksum(ctx, mustParse(t, "s3://bucket/k"))
	require.NoError(t, err)
	assert.Equal(t, checksum.Bytes([]byte("data")), sum)
	assert.Equal(t, 0, mem.Calls(objstoretest.OpGet))

	mem.ReportChecksums = false
	sum, err = st.Checksum(ctx, mustParse(t, "s3://bucket/k"))
	require.NoError(t, err)
	assert.Equal(t, checksum.Bytes([]byte("data")), sum)
	assert.Equal(t, 1, mem.Calls(objstoretest.OpGet))
}

func TestSessionReusesStores(t *testing.T) {
	ctx := context.Background()
	clients := 0
	opened := 0
	mem := objstoretest.NewMemory()
	local := fsys.NewBilly(memfs.New())
	r := &Resolver{
		ObjectStores: objstore.FactoryFunc(func(ctx context.Context, bucket string) (objstore.Client, error) {
			clients++
			return mem, nil
		}),
		FileSystems: fsys.FactoryFunc(func(scheme, authority string) (fsys.FileSystem, error) {
			opened++
			return local, nil
		}),
	}

	s := r.NewSession()
	for _, p := range []string{"s3://bucket/a", "s3a://bucket/b", "s3://other/c", "/x", "file:///y"} {
		_, err := s.For(ctx, mustParse(t, p))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, clients, "one client per bucket")
	assert.Equal(t, 1, opened, "one filesystem per endpoint")

	s2 := r.NewSession()
	_, err := s2.For(ctx, mustParse(t, "s3://bucket/a"))
	require.NoError(t, err)
	assert.Equal(t, 3, clients, "sessions do not share clients")
}

func TestSessionFactoryError(t *testing.T) {
	r := &Resolver{
		ObjectStores: objstore.FactoryFunc(func(ctx context.Context, bucket string) (objstore.Client, error) {
			return nil, errors.New("no credentials")
		}),
	}
	_, err := r.NewSession().For(context.Background(), mustParse(t, "s3://bucket/a"))
	assert.ErrorContains(t, err, "no credentials")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not exist", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, false},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, false},
		{"object not found", fmt.Errorf("get: %w", objstore.ErrNotFound), false},
		{"io error", &fs.PathError{Op: "read", Path: "/x", Err: errors.New("connection reset")}, true},
		{"transient", retry.Transient(errors.New("flaky")), true},
		{"short write", fmt.Errorf("x: %w", ErrShortWrite), true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"plain", errors.New("bad request"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestLimitedFileReadsRange(t *testing.T) {
	local := fsys.NewBilly(memfs.New())
	st := NewFileSystem(local)
	ctx := context.Background()
	loc := mustParse(t, "/f")
	require.NoError(t, st.Put(ctx, loc, bytes.NewReader([]byte("0123456789")), 10))

	rc, err := st.OpenRange(ctx, loc, 8, 100)
	assert.Equal(t, "89", readAll(t, rc, err))
	rc, err = st.OpenRange(ctx, loc, 0, 0)
	assert.Equal(t, "", readAll(t, rc, err))
}
