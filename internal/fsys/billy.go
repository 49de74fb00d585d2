package fsys

import (
	"io"
	"io/fs"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

const dirPerm = 0o755

// Billy adapts a go-billy filesystem.
type Billy struct {
	fs billy.Filesystem
}

func NewBilly(fs billy.Filesystem) *Billy {
	return &Billy{fs: fs}
}

// NewLocal serves absolute paths from the local disk.
func NewLocal() *Billy {
	return NewBilly(osfs.New("/"))
}

func (b *Billy) Stat(name string) (fs.FileInfo, error) {
	return b.fs.Stat(name)
}

func (b *Billy) ReadDir(name string) ([]fs.FileInfo, error) {
	return b.fs.ReadDir(name)
}

func (b *Billy) Open(name string) (File, error) {
	return b.fs.Open(name)
}

func (b *Billy) Create(name string) (io.WriteCloser, error) {
	return b.fs.Create(name)
}

func (b *Billy) MkdirAll(name string) error {
	return b.fs.MkdirAll(name, dirPerm)
}

func (b *Billy) Rename(oldpath, newpath string) error {
	return b.fs.Rename(oldpath, newpath)
}

func (b *Billy) RemoveAll(name string) error {
	return util.RemoveAll(b.fs, name)
}

func (b *Billy) Close() error {
	return nil
}
