package storage

import (
	"errors"
	"io"
	"io/fs"

	"github.com/yuya-takeyama/strict-tree-sync/internal/objstore"
	"github.com/yuya-takeyama/strict-tree-sync/internal/retry"
)

// ErrShortWrite is returned when the bytes written differ from the declared
// size, for example because the source changed during the copy.
var ErrShortWrite = errors.New("written size differs from declared size")

// IsRetryable classifies errors from either backend kind. Missing paths and
// permission failures are permanent; I/O failures on a filesystem and
// transient object-store errors are worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, objstore.ErrNotFound) {
		return false
	}
	if objstore.IsRetryable(err) || retry.IsTransient(err) {
		return true
	}
	if errors.Is(err, ErrShortWrite) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}
