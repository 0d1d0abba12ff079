// Package blob uploads rendered reports to S3.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"timefreedom/internal/retry"
)

// Service is the breaker and metrics label for S3 calls.
const Service = "blob"

// MaxObjectSize is the largest report accepted for upload.
const MaxObjectSize = 50 << 20

const (
	defaultRegion = "us-east-1"
	defaultPrefix = "reports/"
	cacheControl  = "public, max-age=31536000"
)

var (
	ErrEmptyObject    = errors.New("Invalid buffer: Buffer is empty")
	ErrObjectTooLarge = errors.New("File too large: Maximum size is 50MB")
	ErrNoFilename     = errors.New("Invalid filename: Filename is required")
	ErrNotConfigured  = errors.New("S3 bucket not configured")
)

// Putter is the slice of the S3 API the uploader needs.
type Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds S3 settings.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (MinIO, LocalStack)
	Prefix   string
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = defaultRegion
	}
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if !strings.HasSuffix(c.Prefix, "/") {
		c.Prefix += "/"
	}
	return c
}

// Uploader writes PDFs to one bucket and returns their public URLs.
type Uploader struct {
	client Putter
	cfg    Config
}

// NewS3Uploader loads AWS credentials from the default chain.
func NewS3Uploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	cfg = cfg.withDefaults()

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewUploader(client, cfg), nil
}

// NewUploader wraps an existing client.
func NewUploader(client Putter, cfg Config) *Uploader {
	return &Uploader{client: client, cfg: cfg.withDefaults()}
}

// Key is the object key used for filename.
func (u *Uploader) Key(filename string) string {
	if strings.HasPrefix(filename, u.cfg.Prefix) {
		return filename
	}
	return u.cfg.Prefix + filename
}

// URL is the public address of key.
func (u *Uploader) URL(key string) string {
	if u.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(u.cfg.Endpoint, "/"), u.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
}

// Upload stores a PDF and returns its URL.
func (u *Uploader) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	switch {
	case len(data) == 0:
		return "", retry.Permanent(ErrEmptyObject)
	case len(data) > MaxObjectSize:
		return "", retry.Permanent(ErrObjectTooLarge)
	case strings.TrimSpace(filename) == "":
		return "", retry.Permanent(ErrNoFilename)
	}

	key := u.Key(filename)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(u.cfg.Bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentType:        aws.String("application/pdf"),
		ContentDisposition: aws.String(fmt.Sprintf("inline; filename=%q", filename)),
		CacheControl:       aws.String(cacheControl),
	})
	if err != nil {
		return "", u.describe(err)
	}

	return u.URL(key), nil
}

func (u *Uploader) describe(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return fmt.Errorf("S3 bucket '%s' does not exist in region '%s': %w", u.cfg.Bucket, u.cfg.Region, err)
		case "AccessDenied":
			return fmt.Errorf("Access denied to S3 bucket '%s'. Check IAM permissions: %w", u.cfg.Bucket, err)
		}
		return fmt.Errorf("S3 upload failed (Code: %s): %w", apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("S3 upload failed: %w", err)
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	underscores = regexp.MustCompile(`_+`)
)

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	s = underscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

// SafeFilename builds a traversal-proof object name from a lead's name.
func SafeFilename(firstName, lastName string, now time.Time) string {
	first, last := sanitize(firstName), sanitize(lastName)
	var name string
	switch {
	case first != "" && last != "":
		name = first + "_" + last
	case first != "":
		name = first
	case last != "":
		name = last
	default:
		name = "Report"
	}
	return fmt.Sprintf("EA_Time_Freedom_Report_%s_%d.pdf", name, now.UnixMilli())
}
