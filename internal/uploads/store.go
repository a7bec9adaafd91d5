// Package uploads stages files users upload for checking so the backend
// can fetch them.
package uploads

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/digital-land/submit/internal/pkg/logger"
)

// Store persists an uploaded file and returns the key the backend reads
// it from.
type Store interface {
	Put(ctx context.Context, originalName string, body io.Reader, size int64) (string, error)
	Ready(ctx context.Context) error
}

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Config holds S3 staging settings.
type S3Config struct {
	Bucket   string
	Region   string
	Prefix   string // e.g. "uploads"
	Endpoint string // S3-compatible endpoint for local stacks
	Profile  string
}

var contentTypes = map[string]string{
	".csv":     "text/csv",
	".json":    "application/json",
	".geojson": "application/geo+json",
	".gml":     "application/gml+xml",
	".xls":     "application/vnd.ms-excel",
	".xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// S3Store writes uploads to {prefix}/{uuid}{ext} in one bucket.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	newID  func() string
}

// NewS3Store creates an S3 store using the default credential chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("uploads: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
		if region == "" {
			region = "eu-west-2"
		}
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("upload store initialised", "bucket", cfg.Bucket, "prefix", cfg.Prefix, "region", region)
	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3StoreWithClient wraps an existing client (useful for testing).
func NewS3StoreWithClient(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		newID:  func() string { return uuid.NewString() },
	}
}

// Key returns the object key for an upload with the given id.
func (s *S3Store) Key(id, originalName string) string {
	name := id + strings.ToLower(filepath.Ext(originalName))
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Put uploads body under a fresh key. The original file name is kept as
// object metadata only.
func (s *S3Store) Put(ctx context.Context, originalName string, body io.Reader, size int64) (string, error) {
	key := s.Key(s.newID(), originalName)

	contentType, ok := contentTypes[strings.ToLower(filepath.Ext(originalName))]
	if !ok {
		contentType = "application/octet-stream"
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"original-filename": originalName,
			"uploaded-at":       time.Now().UTC().Format(time.RFC3339),
		},
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	logger.Info("upload staged", "bucket", s.bucket, "key", key, "bytes", int(size))
	return key, nil
}

// Ready checks the bucket is reachable.
func (s *S3Store) Ready(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s: %w", s.bucket, err)
	}
	return nil
}
