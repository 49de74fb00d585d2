// Package fsys abstracts hierarchical filesystems (local disk, in-memory and
// HDFS) behind one interface.
package fsys

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
)

// File is an open file handle for reading.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// FileSystem is the set of filesystem operations used by the walker and the
// executor. All paths are absolute and slash-separated.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.FileInfo, error)
	Open(name string) (File, error)
	Create(name string) (io.WriteCloser, error)
	MkdirAll(name string) error
	Rename(oldpath, newpath string) error
	RemoveAll(name string) error
	Close() error
}

// Config carries the settings needed to reach a filesystem.
type Config struct {
	// HDFSNamenode is used for hdfs:/// paths that carry no authority.
	HDFSNamenode string
	HDFSUser     string
}

// Factory opens filesystem sessions. Each call returns an independent
// session so callers can hold one per worker.
type Factory interface {
	Open(scheme, authority string) (FileSystem, error)
}

type FactoryFunc func(scheme, authority string) (FileSystem, error)

func (f FactoryFunc) Open(scheme, authority string) (FileSystem, error) {
	return f(scheme, authority)
}

// NewFactory returns a factory that serves file:// from the local disk and
// hdfs:// from the namenode named by the path or by cfg.
func NewFactory(cfg Config) Factory {
	return FactoryFunc(func(scheme, authority string) (FileSystem, error) {
		switch scheme {
		case "file":
			return NewLocal(), nil
		case "hdfs":
			if authority == "" {
				authority = cfg.HDFSNamenode
			}
			if authority == "" {
				return nil, errors.New("hdfs path has no namenode and none is configured")
			}
			return NewHDFS(authority, cfg.HDFSUser)
		default:
			return nil, fmt.Errorf("unsupported filesystem scheme %q", scheme)
		}
	})
}

// Static returns a factory that always hands out fsys, which is never closed
// by its users. It is meant for in-memory filesystems in tests.
func Static(fsys FileSystem) Factory {
	return FactoryFunc(func(string, string) (FileSystem, error) {
		return nopCloser{fsys}, nil
	})
}

type nopCloser struct {
	FileSystem
}

func (nopCloser) Close() error { return nil }
