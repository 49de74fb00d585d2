package fsys

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/colinmarc/hdfs/v2"
)

// HDFS adapts a colinmarc/hdfs client. Each instance owns its namenode
// connection.
type HDFS struct {
	client *hdfs.Client
}

func NewHDFS(namenode, user string) (*HDFS, error) {
	client, err := hdfs.NewClient(hdfs.ClientOptions{
		Addresses: []string{namenode},
		User:      user,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to namenode %s: %w", namenode, err)
	}
	return &HDFS{client: client}, nil
}

func (h *HDFS) Stat(name string) (fs.FileInfo, error) {
	return h.client.Stat(name)
}

func (h *HDFS) ReadDir(name string) ([]fs.FileInfo, error) {
	return h.client.ReadDir(name)
}

func (h *HDFS) Open(name string) (File, error) {
	return h.client.Open(name)
}

func (h *HDFS) Create(name string) (io.WriteCloser, error) {
	return h.client.Create(name)
}

func (h *HDFS) MkdirAll(name string) error {
	return h.client.MkdirAll(name, dirPerm)
}

func (h *HDFS) Rename(oldpath, newpath string) error {
	return h.client.Rename(oldpath, newpath)
}

func (h *HDFS) RemoveAll(name string) error {
	return h.client.RemoveAll(name)
}

func (h *HDFS) Close() error {
	return h.client.Close()
}
