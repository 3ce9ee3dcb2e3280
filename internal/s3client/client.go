// Package s3client reads and writes catalog documents in an S3-compatible bucket.
// Production points at any S3 endpoint; tests use gofakes3.
package s3client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrObjectNotFound is returned when a requested object does not exist.
var ErrObjectNotFound = errors.New("s3client: object not found")

// Location is a parsed s3://bucket/key reference.
type Location struct {
	Bucket string
	Key    string
}

// ParseURI splits an s3://bucket/key URI. ok is false for anything else, including a
// URI without a key.
func ParseURI(uri string) (Location, bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(uri), "s3://")
	if !found {
		return Location{}, false
	}
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return Location{}, false
	}
	return Location{Bucket: bucket, Key: key}, true
}

// Client is bound to a single bucket.
type Client struct {
	s3Client   *s3.Client
	bucketName string
}

// Config holds the settings for New.
type Config struct {
	Endpoint        string // empty means AWS S3
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UsePathStyle    bool // needed by gofakes3 and most self-hosted stores
}

// New creates a client from static credentials, falling back to the default AWS
// credential chain when none are given.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3client: load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewFromS3Client(s3Client, cfg.BucketName), nil
}

// NewFromS3Client wraps an existing SDK client.
func NewFromS3Client(s3Client *s3.Client, bucketName string) *Client {
	return &Client{s3Client: s3Client, bucketName: bucketName}
}

// PutObject stores content under key.
func (c *Client) PutObject(ctx context.Context, key string, content []byte, contentType string) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3client: put %q: %w", key, err)
	}
	return nil
}

// GetObject returns the content stored under key, or ErrObjectNotFound.
func (c *Client) GetObject(ctx context.Context, key string) ([]byte, error) {
	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &notFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("s3client: get %q: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("s3client: read %q: %w", key, err)
	}
	return data, nil
}

// BucketName returns the bucket the client is bound to.
func (c *Client) BucketName() string {
	return c.bucketName
}
