// Package filestore persists assignment and submission files in S3-compatible
// object storage so every document has a stable public URL.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Storage uploads a document and returns its public URL.
type Storage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Opts holds configuration for the S3 storage backend.
type Opts struct {
	Endpoint        string // S3-compatible endpoint (R2, MinIO, AWS)
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string // base URL where uploaded objects are reachable
}

// Option configures S3 storage.
type Option func(*Opts)

// WithEndpoint sets the S3-compatible endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(o *Opts) { o.Endpoint = endpoint }
}

// WithRegion sets the bucket region.
func WithRegion(region string) Option {
	return func(o *Opts) { o.Region = region }
}

// WithBucket sets the target bucket.
func WithBucket(bucket string) Option {
	return func(o *Opts) { o.Bucket = bucket }
}

// WithCredentials sets static credentials.
func WithCredentials(accessKeyID, secretAccessKey string) Option {
	return func(o *Opts) {
		o.AccessKeyID = accessKeyID
		o.SecretAccessKey = secretAccessKey
	}
}

// WithPublicBaseURL sets the base URL used to build object URLs.
func WithPublicBaseURL(baseURL string) Option {
	return func(o *Opts) { o.PublicBaseURL = baseURL }
}

// S3Storage stores files in an S3-compatible bucket.
type S3Storage struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewS3Storage builds an S3 storage client from the options.
func NewS3Storage(ctx context.Context, opts ...Option) (*S3Storage, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket must be provided")
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("public base URL must be provided")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	slog.Info("S3 file storage initialized", "bucket", cfg.Bucket, "endpoint_set", cfg.Endpoint != "")
	return &S3Storage{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// Upload puts the object and returns its public URL.
func (s *S3Storage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key cannot be empty")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("object data cannot be empty")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		if isBucketConfigError(err) {
			slog.Error("S3Storage Upload rejected, check bucket configuration", "key", key, "bucket", s.bucket, "error", err)
		} else {
			slog.Error("S3Storage Upload failed", "key", key, "error", err)
		}
		return "", fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	url := s.publicBaseURL + "/" + key
	slog.Debug("S3Storage uploaded object", "key", key, "size", len(data), "url", url)
	return url, nil
}

// isBucketConfigError reports errors the operator must fix (wrong bucket,
// bad credentials), as opposed to transient upload failures.
func isBucketConfigError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchBucket", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return true
	}
	return false
}

// MemoryStorage is an in-memory Storage for tests.
type MemoryStorage struct {
	mu      sync.Mutex
	Objects map[string][]byte
	BaseURL string
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Objects: make(map[string][]byte),
		BaseURL: "https://files.example.test",
	}
}

func (m *MemoryStorage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[key] = append([]byte(nil), data...)
	return m.BaseURL + "/" + key, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ObjectKey builds a collision-resistant object key in the form
// "{CODE}_{timestamp}_{filename}" with unsafe characters stripped.
func ObjectKey(code, filename string, now time.Time) string {
	safeName := unsafeKeyChars.ReplaceAllString(filename, "_")
	if strings.Trim(safeName, "_") == "" {
		safeName = "file"
	}
	return fmt.Sprintf("%s_%s_%s", strings.ToUpper(code), now.Format("20060102_150405"), safeName)
}

// AnswerKeyObjectKey builds the object key for an answer key upload, prefixed
// so keys never collide with student-facing files.
func AnswerKeyObjectKey(code, filename string, now time.Time) string {
	return "key_" + ObjectKey(code, filename, now)
}
