package objstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOClient implements Client for S3-compatible stores through the
// minio-go Core API, which exposes the low-level multipart calls.
type MinIOClient struct {
	core *minio.Core
}

func NewMinIOClient(cfg Config) (*MinIOClient, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")

	lookup := minio.BucketLookupAuto
	if cfg.UsePathStyle {
		lookup = minio.BucketLookupPath
	}

	core, err := minio.NewCore(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
		MaxRetries:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinIOClient{core: core}, nil
}

func (c *MinIOClient) ListPage(ctx context.Context, bucket, prefix, token string) (*Page, error) {
	result, err := c.core.ListObjectsV2(bucket, prefix, "", token, "", listPageSize)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Objects:   make([]Object, 0, len(result.Contents)),
		Truncated: result.IsTruncated,
		NextToken: result.NextContinuationToken,
	}
	for _, obj := range result.Contents {
		page.Objects = append(page.Objects, Object{Key: obj.Key, Size: obj.Size})
	}
	return page, nil
}

func (c *MinIOClient) Head(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	info, err := c.core.Client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, translateMinIOError(err, key)
	}
	// Checksums are left empty so callers stream the content themselves.
	return &ObjectInfo{Size: info.Size}, nil
}

func (c *MinIOClient) Get(ctx context.Context, bucket, key string, off, n int64) (io.ReadCloser, error) {
	if n == 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}
	opts := minio.GetObjectOptions{}
	switch {
	case n > 0:
		if err := opts.SetRange(off, off+n-1); err != nil {
			return nil, err
		}
	case off > 0:
		if err := opts.SetRange(off, 0); err != nil {
			return nil, err
		}
	}

	body, _, _, err := c.core.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, translateMinIOError(err, key)
	}
	return body, nil
}

func (c *MinIOClient) Put(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	_, err := c.core.Client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		DisableMultipart: true,
	})
	return err
}

func (c *MinIOClient) CreateMultipart(ctx context.Context, bucket, key string) (string, error) {
	return c.core.NewMultipartUpload(ctx, bucket, key, minio.PutObjectOptions{})
}

func (c *MinIOClient) UploadPart(ctx context.Context, bucket, key, uploadID string, number int32, body io.Reader, size int64) (Part, error) {
	part, err := c.core.PutObjectPart(ctx, bucket, key, uploadID, int(number), body, size, minio.PutObjectPartOptions{})
	if err != nil {
		return Part{}, err
	}
	return Part{Number: number, ETag: part.ETag}, nil
}

func (c *MinIOClient) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []Part) error {
	completed := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		completed[i] = minio.CompletePart{PartNumber: int(p.Number), ETag: p.ETag}
	}
	_, err := c.core.CompleteMultipartUpload(ctx, bucket, key, uploadID, completed, minio.PutObjectOptions{})
	return err
}

func (c *MinIOClient) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	return c.core.AbortMultipartUpload(ctx, bucket, key, uploadID)
}

func translateMinIOError(err error, key string) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}
