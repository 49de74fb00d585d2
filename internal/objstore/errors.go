package objstore

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"
	"github.com/yuya-takeyama/strict-tree-sync/internal/retry"
)

var retryableCodes = map[string]bool{
	"SlowDown":                   true,
	"ServiceUnavailable":         true,
	"RequestTimeout":             true,
	"RequestTimeoutException":    true,
	"InternalError":              true,
	"XMinioServerNotInitialized": true,
}

// IsRetryable reports whether err is a transient object-store failure worth
// another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	if retry.IsTransient(err) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if retryableCodes[apiErr.ErrorCode()] {
			return true
		}
		if httpErr, ok := apiErr.(interface{ HTTPStatusCode() int }); ok {
			return isServerError(httpErr.HTTPStatusCode())
		}
	}

	var httpErr interface{ HTTPStatusCode() int }
	if errors.As(err, &httpErr) && isServerError(httpErr.HTTPStatusCode()) {
		return true
	}

	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		return retryableCodes[minioErr.Code] || isServerError(minioErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

func isServerError(code int) bool {
	return code >= 500 && code < 600
}
