// Package fsystest provides an in-memory fsys.FileSystem that is safe to share
// between workers in tests.
package fsystest

import (
	"io"
	"io/fs"
	"sync"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/yuya-takeyama/strict-tree-sync/internal/fsys"
)

// Memory serializes every call, including reads and writes on open handles,
// onto one go-billy memfs.
type Memory struct {
	mu sync.Mutex
	fs *fsys.Billy
}

func NewMemory() *Memory {
	return &Memory{fs: fsys.NewBilly(memfs.New())}
}

func (m *Memory) Stat(name string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fs.Stat(name)
}

func (m *Memory) ReadDir(name string) ([]fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fs.ReadDir(name)
}

func (m *Memory) Open(name string) (fsys.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.fs.Open(name)
	if err != nil {
		return nil, err
	}
	return &file{mu: &m.mu, f: f}, nil
}

func (m *Memory) Create(name string) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, err := m.fs.Create(name)
	if err != nil {
		return nil, err
	}
	return &writer{mu: &m.mu, w: w}, nil
}

func (m *Memory) MkdirAll(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fs.MkdirAll(name)
}

func (m *Memory) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fs.Rename(oldpath, newpath)
}

func (m *Memory) RemoveAll(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fs.RemoveAll(name)
}

func (m *Memory) Close() error {
	return nil
}

type file struct {
	mu *sync.Mutex
	f  fsys.File
}

func (f *file) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Read(p)
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.ReadAt(p, off)
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Seek(offset, whence)
}

func (f *file) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.Close()
}

type writer struct {
	mu *sync.Mutex
	w  io.WriteCloser
}

func (w *writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

func (w *writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Close()
}
