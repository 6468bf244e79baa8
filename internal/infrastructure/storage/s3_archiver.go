// Package storage archives finished batch jobs to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/integration"
	infraconfig "github.com/storesync/backend/internal/infrastructure/config"
	"github.com/storesync/backend/internal/infrastructure/scheduler"
	"go.uber.org/zap"
)

// ErrArchiveNotFound is returned by Fetch when no archive exists for a job
var ErrArchiveNotFound = errors.New("storage: archive not found")

// Ensure S3JobArchiver implements JobArchiver
var _ scheduler.JobArchiver = (*S3JobArchiver)(nil)

// S3JobArchiver writes finished jobs as JSON documents to a bucket.
// It is compatible with any S3-compatible storage (AWS S3, MinIO, etc.)
type S3JobArchiver struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// S3JobArchiverOption is a functional option for configuring S3JobArchiver
type S3JobArchiverOption func(*S3JobArchiver)

// WithLogger sets a custom logger for S3JobArchiver
func WithLogger(logger *zap.Logger) S3JobArchiverOption {
	return func(a *S3JobArchiver) {
		a.logger = logger
	}
}

// NewS3JobArchiver creates an archiver from the retention configuration.
// Static credentials are used when both keys are set; otherwise the default
// AWS credential chain applies.
func NewS3JobArchiver(ctx context.Context, cfg *infraconfig.RetentionConfig, opts ...S3JobArchiverOption) (*S3JobArchiver, error) {
	if cfg == nil {
		return nil, errors.New("retention configuration is required")
	}
	if cfg.S3Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if (cfg.S3AccessKey == "") != (cfg.S3SecretKey == "") {
		return nil, errors.New("archive access key and secret key must be set together")
	}

	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.S3AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := cfg.S3Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	if endpoint != "" {
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid archive endpoint: %w", err)
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3PathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	archiver := &S3JobArchiver{
		client: client,
		bucket: cfg.S3Bucket,
		prefix: normalizePrefix(cfg.S3Prefix),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(archiver)
	}
	return archiver, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup to ensure the bucket is ready.
func (a *S3JobArchiver) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	a.logger.Info("Creating archive bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		// Another replica may have created it first
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Key returns the object key of a job archive. Jobs are grouped by the
// month they were created in.
func (a *S3JobArchiver) Key(jobID uuid.UUID, createdAt time.Time) string {
	return fmt.Sprintf("%s%s/%s.json", a.prefix, createdAt.UTC().Format("2006/01"), jobID)
}

// Archive uploads the job document. Writing the same job twice overwrites
// the previous object.
func (a *S3JobArchiver) Archive(ctx context.Context, job *integration.BatchJob) error {
	if job == nil {
		return errors.New("job is required")
	}
	body, err := json.Marshal(newJobDocument(job))
	if err != nil {
		return fmt.Errorf("failed to encode job archive: %w", err)
	}

	key := a.Key(job.ID, job.CreatedAt)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
		Metadata: map[string]string{
			"job-status": string(job.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload job archive: %w", err)
	}

	a.logger.Debug("Job archived",
		zap.String("job_id", job.ID.String()),
		zap.String("key", key),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// Fetch reads an archived job back
func (a *S3JobArchiver) Fetch(ctx context.Context, jobID uuid.UUID, createdAt time.Time) (*integration.BatchJob, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.Key(jobID, createdAt)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return nil, ErrArchiveNotFound
		}
		return nil, fmt.Errorf("failed to download job archive: %w", err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read job archive: %w", err)
	}
	var doc jobDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode job archive: %w", err)
	}
	return doc.toDomain(), nil
}

// Bucket returns the bucket name
func (a *S3JobArchiver) Bucket() string {
	return a.bucket
}
