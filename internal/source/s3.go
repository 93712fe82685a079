package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/maximevalette/backups-reporter/internal/config"
	"github.com/maximevalette/backups-reporter/internal/domain"
	apperrors "github.com/maximevalette/backups-reporter/internal/errors"
)

const defaultS3Endpoint = "s3.amazonaws.com"

// s3Object is the subset of object metadata the report needs
type s3Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

type listS3ObjectsFunc func(ctx context.Context, cfg config.S3BucketConfig) ([]s3Object, error)

var listS3Objects listS3ObjectsFunc = listS3ObjectsMinio

// SetListS3ObjectsForTest allows tests to stub out bucket listing.
func SetListS3ObjectsForTest(fn listS3ObjectsFunc) func() {
	prev := listS3Objects
	listS3Objects = fn
	return func() { listS3Objects = prev }
}

// S3Provider lists objects from an S3-compatible bucket
type S3Provider struct {
	cfg    config.S3BucketConfig
	logger *slog.Logger
}

// NewS3Provider creates a provider for one configured bucket
func NewS3Provider(cfg config.S3BucketConfig, logger *slog.Logger) *S3Provider {
	return &S3Provider{cfg: cfg, logger: logger}
}

// Name returns the source label
func (p *S3Provider) Name() string {
	return "s3:" + p.cfg.Name
}

// Fetch lists all objects under the configured prefix and returns the
// limit most recent ones, newest first
func (p *S3Provider) Fetch(ctx context.Context, limit int) ([]domain.Entry, error) {
	objects, err := listS3Objects(ctx, p.cfg)
	if err != nil {
		return nil, apperrors.NewSourceError(p.Name(), "list objects", err)
	}

	entries := make([]domain.Entry, 0, len(objects))
	for _, obj := range objects {
		size := obj.Size
		entries = append(entries, domain.Entry{
			Source:    p.Name(),
			Name:      obj.Key,
			Timestamp: obj.LastModified.UTC(),
			Size:      &size,
			Kind:      domain.EntryKindS3Object,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	p.logger.Debug("listed s3 bucket", "source", p.Name(), "objects", len(objects))
	return entries, nil
}

func listS3ObjectsMinio(ctx context.Context, cfg config.S3BucketConfig) ([]s3Object, error) {
	client, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}

	var objects []s3Object
	opts := minio.ListObjectsOptions{Prefix: cfg.Prefix, Recursive: true}
	for object := range client.ListObjects(ctx, cfg.Bucket, opts) {
		if object.Err != nil {
			return nil, fmt.Errorf("list objects in bucket %s: %w", cfg.Bucket, object.Err)
		}
		objects = append(objects, s3Object{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return objects, nil
}

func newMinioClient(cfg config.S3BucketConfig) (*minio.Client, error) {
	endpoint := defaultS3Endpoint
	secure := true
	if cfg.EndpointURL != "" {
		parsed, err := url.Parse(cfg.EndpointURL)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint url: %w", err)
		}
		endpoint = parsed.Host
		secure = parsed.Scheme != "http"
	}

	opts := &minio.Options{
		Region: cfg.Region,
		Secure: secure,
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts.Creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		// Fall back to the ambient AWS credential chain.
		opts.Creds = credentials.NewEnvAWS()
	}

	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("init s3 client for bucket %s: %w", cfg.Bucket, err)
	}
	return client, nil
}
