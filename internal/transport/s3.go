package transport

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/model"
)

// ObjectStorage uploads backup files to an S3-compatible bucket.
type ObjectStorage struct {
	logger zerolog.Logger
	cfg    *model.ObjectStorageConfig
	client *s3.Client
}

// s3Client returns an S3 client for the configured bucket, honoring a
// custom endpoint for non-AWS object stores.
func s3Client(cfg *model.ObjectStorageConfig) *s3.Client {
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

func NewObjectStorage(cfg *model.ObjectStorageConfig, logger zerolog.Logger) (*ObjectStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("object storage channel not configured")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid object storage config: %w", err)
	}
	return &ObjectStorage{
		logger: logger.With().Str("component", "s3-transport").Logger(),
		cfg:    cfg,
		client: s3Client(cfg),
	}, nil
}

func (t *ObjectStorage) Deliver(ctx context.Context, record *model.BackupRecord) (string, error) {
	file, err := os.Open(record.Path)
	if err != nil {
		return "", fmt.Errorf("open backup file: %w", err)
	}
	defer file.Close()

	key := remoteName(record)
	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(t.cfg.Bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	t.logger.Info().Int64("record", record.ID).Str("bucket", t.cfg.Bucket).Str("key", key).Msg("uploaded backup to object storage")
	return fmt.Sprintf("uploaded %s to bucket %s", key, t.cfg.Bucket), nil
}

// RemoteDelete removes the uploaded object.
func (t *ObjectStorage) RemoteDelete(ctx context.Context, record *model.BackupRecord) error {
	key := remoteName(record)
	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// DownloadLink generates a presigned GET URL against the object storage
// bucket, so the backup can be fetched without credentials until the link
// expires.
type DownloadLink struct {
	logger  zerolog.Logger
	cfg     *model.ObjectStorageConfig
	presign *s3.PresignClient
}

func NewDownloadLink(cfg *model.ObjectStorageConfig, logger zerolog.Logger) (*DownloadLink, error) {
	if cfg == nil {
		return nil, fmt.Errorf("download links require an object storage config")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid object storage config: %w", err)
	}
	return &DownloadLink{
		logger:  logger.With().Str("component", "link-transport").Logger(),
		cfg:     cfg,
		presign: s3.NewPresignClient(s3Client(cfg)),
	}, nil
}

func (t *DownloadLink) Deliver(ctx context.Context, record *model.BackupRecord) (string, error) {
	ttl := 24 * time.Hour
	if t.cfg.LinkTTLHours > 0 {
		ttl = time.Duration(t.cfg.LinkTTLHours) * time.Hour
	}

	key := remoteName(record)
	req, err := t.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}

	t.logger.Info().Int64("record", record.ID).Str("key", key).Dur("ttl", ttl).Msg("generated download link")
	return req.URL, nil
}
