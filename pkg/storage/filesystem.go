package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"

	"github.com/yuya-takeyama/strict-tree-sync/internal/fsys"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/backend"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/checksum"
)

// copyingSuffix marks a file that is still being written. It is renamed into
// place once complete so readers never see a partial file.
const copyingSuffix = "._COPYING_"

// FileSystem serves locations on one filesystem session.
type FileSystem struct {
	fs fsys.FileSystem
}

func NewFileSystem(fs fsys.FileSystem) *FileSystem {
	return &FileSystem{fs: fs}
}

func (s *FileSystem) Kind() backend.Kind {
	return backend.HierarchicalFS
}

func (s *FileSystem) Open(ctx context.Context, loc backend.Location) (io.ReadCloser, error) {
	return s.OpenRange(ctx, loc, 0, -1)
}

func (s *FileSystem) OpenRange(_ context.Context, loc backend.Location, off, n int64) (io.ReadCloser, error) {
	f, err := s.fs.Open(loc.Path)
	if err != nil {
		return nil, err
	}
	if off > 0 {
		if _, err := f.Seek(off, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek %s to %d: %w", loc.Path, off, err)
		}
	}
	if n < 0 {
		return f, nil
	}
	return &limitedFile{Reader: io.LimitReader(f, n), Closer: f}, nil
}

type limitedFile struct {
	io.Reader
	io.Closer
}

// Put writes body to a temporary sibling and renames it over loc.
func (s *FileSystem) Put(_ context.Context, loc backend.Location, body io.Reader, size int64) error {
	if err := s.fs.MkdirAll(path.Dir(loc.Path)); err != nil {
		return fmt.Errorf("mkdir %s: %w", path.Dir(loc.Path), err)
	}

	tmp := loc.Path + copyingSuffix
	if err := s.write(tmp, body, size); err != nil {
		_ = s.fs.RemoveAll(tmp)
		return err
	}
	return s.commit(tmp, loc.Path)
}

func (s *FileSystem) write(name string, body io.Reader, size int64) error {
	w, err := s.fs.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	written, err := io.Copy(w, body)
	if err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("%s: %w: wrote %d of %d bytes", name, ErrShortWrite, written, size)
	}
	return nil
}

func (s *FileSystem) commit(tmp, dest string) error {
	if err := s.fs.RemoveAll(dest); err != nil {
		return fmt.Errorf("remove existing %s: %w", dest, err)
	}
	if err := s.fs.Rename(tmp, dest); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmp, dest, err)
	}
	return nil
}

func (s *FileSystem) MkdirAll(_ context.Context, loc backend.Location) error {
	return s.fs.MkdirAll(loc.Path)
}

// StartMultipart stages parts as separate files beside the destination and
// concatenates them on Complete.
func (s *FileSystem) StartMultipart(_ context.Context, loc backend.Location) (Multipart, error) {
	dir := loc.Path + copyingSuffix + ".parts"
	if err := s.fs.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear %s: %w", dir, err)
	}
	if err := s.fs.MkdirAll(dir); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &fsMultipart{fs: s, dest: loc.Path, dir: dir, sizes: make(map[int32]int64)}, nil
}

func (s *FileSystem) Checksum(_ context.Context, loc backend.Location) (string, error) {
	f, err := s.fs.Open(loc.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return checksum.Reader(f)
}

func (s *FileSystem) Close() error {
	return s.fs.Close()
}

type fsMultipart struct {
	fs   *FileSystem
	dest string
	dir  string

	mu    sync.Mutex
	sizes map[int32]int64
}

func (m *fsMultipart) partPath(number int32) string {
	return path.Join(m.dir, fmt.Sprintf("part-%05d", number))
}

func (m *fsMultipart) UploadPart(_ context.Context, number int32, body io.Reader, size int64) error {
	if err := m.fs.write(m.partPath(number), body, size); err != nil {
		return fmt.Errorf("part %d of %s: %w", number, m.dest, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes[number] = size
	return nil
}

func (m *fsMultipart) Complete(_ context.Context) error {
	m.mu.Lock()
	numbers := make([]int32, 0, len(m.sizes))
	for n := range m.sizes {
		numbers = append(numbers, n)
	}
	m.mu.Unlock()
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	for i, n := range numbers {
		if n != int32(i+1) {
			return fmt.Errorf("complete %s: missing part %d", m.dest, i+1)
		}
	}

	tmp := m.dest + copyingSuffix
	if err := m.concat(tmp, numbers); err != nil {
		_ = m.fs.fs.RemoveAll(tmp)
		return err
	}
	if err := m.fs.commit(tmp, m.dest); err != nil {
		return err
	}
	return m.fs.fs.RemoveAll(m.dir)
}

func (m *fsMultipart) concat(tmp string, numbers []int32) error {
	w, err := m.fs.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	for _, n := range numbers {
		if err := m.appendPart(w, n); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	return nil
}

func (m *fsMultipart) appendPart(w io.Writer, number int32) error {
	f, err := m.fs.fs.Open(m.partPath(number))
	if err != nil {
		return fmt.Errorf("open part %d of %s: %w", number, m.dest, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("append part %d of %s: %w", number, m.dest, err)
	}
	return nil
}

func (m *fsMultipart) Abort(_ context.Context) error {
	return m.fs.fs.RemoveAll(m.dir)
}
