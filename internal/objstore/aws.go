package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	listPageSize = 1000
	// Region used to bootstrap bucket-region discovery.
	bootstrapRegion = "us-east-1"
)

// s3API is the part of *s3.Client that AWSClient calls.
type s3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// AWSClient implements Client on top of the AWS SDK v2 S3 client. The SDK's
// own retryer is limited to a single attempt.
//
// Uploads, single-shot and multipart alike, are stored with a full-object
// CRC64NVME so Head can report it without a download.
type AWSClient struct {
	s3Client s3API
}

// NewAWSClient builds a client with its own HTTP transport.
func NewAWSClient(ctx context.Context, cfg Config) (*AWSClient, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &AWSClient{s3Client: newS3Client(awsCfg, cfg)}, nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{
		config.WithRetryMaxAttempts(1),
		config.WithHTTPClient(awshttp.NewBuildableClient()),
	}
	if cfg.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.Region != "" {
		configOpts = append(configOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

func newS3Client(awsCfg aws.Config, cfg Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
}

func discoverBucketRegion(ctx context.Context, cfg Config, bucket string) (string, error) {
	bootstrap := cfg
	bootstrap.Region = bootstrapRegion
	awsCfg, err := loadAWSConfig(ctx, bootstrap)
	if err != nil {
		return "", err
	}
	return manager.GetBucketRegion(ctx, newS3Client(awsCfg, bootstrap), bucket)
}

func (c *AWSClient) ListPage(ctx context.Context, bucket, prefix, token string) (*Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(listPageSize),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	out, err := c.s3Client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Objects:   make([]Object, 0, len(out.Contents)),
		Truncated: aws.ToBool(out.IsTruncated),
		NextToken: aws.ToString(out.NextContinuationToken),
	}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, Object{
			Key:  aws.ToString(obj.Key),
			Size: aws.ToInt64(obj.Size),
		})
	}
	return page, nil
}

func (c *AWSClient) Head(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	resp, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(key),
		ChecksumMode: types.ChecksumModeEnabled,
	})
	if err != nil {
		return nil, translateAWSError(err, key)
	}

	info := &ObjectInfo{Size: aws.ToInt64(resp.ContentLength)}
	if resp.ChecksumCRC64NVME != nil && resp.ChecksumType != types.ChecksumTypeComposite {
		info.Checksum = *resp.ChecksumCRC64NVME
	}
	return info, nil
}

func (c *AWSClient) Get(ctx context.Context, bucket, key string, off, n int64) (io.ReadCloser, error) {
	if n == 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if rng := byteRange(off, n); rng != "" {
		input.Range = aws.String(rng)
	}

	resp, err := c.s3Client.GetObject(ctx, input)
	if err != nil {
		return nil, translateAWSError(err, key)
	}
	return resp.Body, nil
}

func (c *AWSClient) Put(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(bucket),
		Key:               aws.String(key),
		Body:              body,
		ContentLength:     aws.Int64(size),
		ChecksumAlgorithm: types.ChecksumAlgorithmCrc64nvme,
	})
	return err
}

func (c *AWSClient) CreateMultipart(ctx context.Context, bucket, key string) (string, error) {
	resp, err := c.s3Client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:            aws.String(bucket),
		Key:               aws.String(key),
		ChecksumAlgorithm: types.ChecksumAlgorithmCrc64nvme,
		ChecksumType:      types.ChecksumTypeFullObject,
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(resp.UploadId), nil
}

func (c *AWSClient) UploadPart(ctx context.Context, bucket, key, uploadID string, number int32, body io.Reader, size int64) (Part, error) {
	resp, err := c.s3Client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:            aws.String(bucket),
		Key:               aws.String(key),
		UploadId:          aws.String(uploadID),
		PartNumber:        aws.Int32(number),
		Body:              body,
		ContentLength:     aws.Int64(size),
		ChecksumAlgorithm: types.ChecksumAlgorithmCrc64nvme,
	})
	if err != nil {
		return Part{}, err
	}
	return Part{
		Number:   number,
		ETag:     aws.ToString(resp.ETag),
		Checksum: aws.ToString(resp.ChecksumCRC64NVME),
	}, nil
}

func (c *AWSClient) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []Part) error {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.Number),
		}
		if p.Checksum != "" {
			completed[i].ChecksumCRC64NVME = aws.String(p.Checksum)
		}
	}
	_, err := c.s3Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(key),
		UploadId:     aws.String(uploadID),
		ChecksumType: types.ChecksumTypeFullObject,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	return err
}

func (c *AWSClient) AbortMultipart(ctx context.Context, bucket, key, uploadID string) error {
	_, err := c.s3Client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	return err
}

func translateAWSError(err error, key string) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

// byteRange renders an HTTP Range header value for a non-empty read. It
// returns "" for a read of the whole object.
func byteRange(off, n int64) string {
	switch {
	case n < 0 && off == 0:
		return ""
	case n < 0:
		return fmt.Sprintf("bytes=%d-", off)
	default:
		return fmt.Sprintf("bytes=%d-%d", off, off+n-1)
	}
}
