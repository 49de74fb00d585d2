// Package checksum computes CRC64NVME content checksums in the base64 form S3
// reports them.
package checksum

import (
	"encoding/base64"
	"fmt"
	"hash"
	"hash/crc64"
	"io"
)

const bufferSize = 64 * 1024

// CRC64NVME polynomial as per AWS S3 specification
var crc64NVMETable = crc64.MakeTable(0x9a6c9329ac4bc9b5)

func New() hash.Hash64 {
	return crc64.New(crc64NVMETable)
}

func encode(h hash.Hash) string {
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Reader consumes r and returns its checksum.
func Reader(r io.Reader) (string, error) {
	h := New()
	buf := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return encode(h), nil
}

// Bytes returns the checksum of b.
func Bytes(b []byte) string {
	h := New()
	h.Write(b)
	return encode(h)
}

// TeeReader computes the checksum of everything read through it.
type TeeReader struct {
	reader   io.Reader
	hash     hash.Hash64
	checksum string
	done     bool
}

func NewTeeReader(r io.Reader) *TeeReader {
	return &TeeReader{
		reader: r,
		hash:   New(),
	}
}

func (t *TeeReader) Read(p []byte) (n int, err error) {
	n, err = t.reader.Read(p)
	if n > 0 {
		t.hash.Write(p[:n])
	}
	if err == io.EOF {
		t.done = true
		t.checksum = encode(t.hash)
	}
	return n, err
}

// Checksum returns the calculated checksum (only valid after EOF)
func (t *TeeReader) Checksum() (string, error) {
	if !t.done {
		return "", fmt.Errorf("checksum not yet calculated (read not complete)")
	}
	return t.checksum, nil
}
