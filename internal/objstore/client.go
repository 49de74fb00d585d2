// Package objstore is the object-store data plane: paged listing, ranged
// reads, single-shot and multipart writes. It has an AWS SDK v2 and a MinIO
// implementation selected by Config.Provider.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrNotFound is returned by Head and Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// Object is one key returned by a listing page.
type Object struct {
	Key  string
	Size int64
}

// Page is one page of a prefix listing. NextToken is passed back to ListPage
// to fetch the following page while Truncated is true.
type Page struct {
	Objects   []Object
	NextToken string
	Truncated bool
}

// ObjectInfo is the metadata returned by Head. Checksum is the base64
// CRC64NVME of the full object when the store reports one.
type ObjectInfo struct {
	Size     int64
	Checksum string
}

// Part identifies one uploaded part of a multipart upload.
type Part struct {
	Number int32
	ETag   string
	// Checksum is the base64 CRC64NVME of the part when the store reports one.
	Checksum string
}

// Client is the subset of object-store operations used by the walker and the
// executor. Implementations perform a single attempt per call; retries are
// the caller's concern.
type Client interface {
	ListPage(ctx context.Context, bucket, prefix, token string) (*Page, error)
	Head(ctx context.Context, bucket, key string) (*ObjectInfo, error)
	// Get reads n bytes starting at off. A negative n reads to the end.
	Get(ctx context.Context, bucket, key string, off, n int64) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64) error
	CreateMultipart(ctx context.Context, bucket, key string) (string, error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, number int32, body io.Reader, size int64) (Part, error)
	CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []Part) error
	AbortMultipart(ctx context.Context, bucket, key, uploadID string) error
}

const (
	ProviderAWS   = "aws"
	ProviderMinIO = "minio"
)

// Config selects and configures the object-store provider.
type Config struct {
	Provider     string
	Region       string
	Profile      string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
}

// Factory creates clients. Every call returns a client with its own
// connection pool so callers can hold one per worker.
type Factory interface {
	NewClient(ctx context.Context, bucket string) (Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, bucket string) (Client, error)

func (f FactoryFunc) NewClient(ctx context.Context, bucket string) (Client, error) {
	return f(ctx, bucket)
}

// NewFactory returns the factory for cfg.Provider. An empty provider means AWS.
func NewFactory(cfg Config) (Factory, error) {
	switch cfg.Provider {
	case "", ProviderAWS:
		return &awsFactory{cfg: cfg, regions: make(map[string]string)}, nil
	case ProviderMinIO:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("minio provider requires an endpoint")
		}
		return FactoryFunc(func(ctx context.Context, bucket string) (Client, error) {
			return NewMinIOClient(cfg)
		}), nil
	default:
		return nil, fmt.Errorf("unknown object store provider %q", cfg.Provider)
	}
}

// Static returns a factory that always hands out c. It is used where a single
// shared client is acceptable, such as tests.
func Static(c Client) Factory {
	return FactoryFunc(func(context.Context, string) (Client, error) {
		return c, nil
	})
}

type awsFactory struct {
	cfg Config

	mu      sync.Mutex
	regions map[string]string
}

func (f *awsFactory) NewClient(ctx context.Context, bucket string) (Client, error) {
	region, err := f.region(ctx, bucket)
	if err != nil {
		return nil, err
	}
	cfg := f.cfg
	cfg.Region = region
	return NewAWSClient(ctx, cfg)
}

// region returns the configured region or discovers (and caches) the bucket's
// region when none is configured.
func (f *awsFactory) region(ctx context.Context, bucket string) (string, error) {
	if f.cfg.Region != "" || bucket == "" {
		return f.cfg.Region, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.regions[bucket]; ok {
		return r, nil
	}
	r, err := discoverBucketRegion(ctx, f.cfg, bucket)
	if err != nil {
		return "", fmt.Errorf("discover region of bucket %s: %w", bucket, err)
	}
	f.regions[bucket] = r
	return r, nil
}
