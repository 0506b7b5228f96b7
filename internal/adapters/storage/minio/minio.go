// Package minio archives renders in an S3-compatible bucket through
// minio-go.
package minio

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"trendmaker/internal/pkg/errors"
	"trendmaker/internal/ports"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Client implements ports.StorageProvider on a MinIO bucket.
type Client struct {
	client *miniogo.Client
	bucket string
	region string
}

func New(cfg Config) (*Client, error) {
	// minio-go expects host:port
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := miniogo.New(endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "minio.New", "failed to create minio client")
	}

	return &Client{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

func (c *Client) Provider() string { return "minio" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.Validation("object_key is required")
	}

	info, err := c.client.PutObject(ctx, c.bucket, in.ObjectKey, in.Reader, in.Size, miniogo.PutObjectOptions{
		ContentType: in.ContentType,
	})
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUnavailable, "minio.PutObject", "upload failed").
			WithField("object_key", in.ObjectKey)
	}
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: info.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	obj, err := c.client.GetObject(ctx, c.bucket, objectKey, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, "", 0, c.wrap(err, "minio.GetObject", objectKey)
	}

	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, "", 0, c.wrap(err, "minio.GetObject", objectKey)
	}
	return obj, info.ContentType, info.Size, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	if err := c.client.RemoveObject(ctx, c.bucket, objectKey, miniogo.RemoveObjectOptions{}); err != nil {
		return c.wrap(err, "minio.DeleteObject", objectKey)
	}
	return nil
}

func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	u, err := c.client.PresignedGetObject(ctx, c.bucket, objectKey, expiresIn, url.Values{})
	if err != nil {
		return ports.SignedURLOutput{}, c.wrap(err, "minio.GetSignedURL", objectKey)
	}
	return ports.SignedURLOutput{URL: u.String(), ExpiresAt: time.Now().UTC().Add(expiresIn)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.BucketExists(ctx, c.bucket); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "minio.Ping", "bucket unreachable")
	}
	return nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "minio.EnsureBucket", "bucket unreachable")
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucket, miniogo.MakeBucketOptions{Region: c.region}); err != nil {
		return errors.Wrap(err, "minio.EnsureBucket", "failed to create bucket "+c.bucket)
	}
	return nil
}

func (c *Client) wrap(err error, op, key string) error {
	if miniogo.ToErrorResponse(err).Code == "NoSuchKey" {
		return errors.New(errors.CodeNotFound, "object not found").WithField("object_key", key)
	}
	return errors.WrapWithCode(err, errors.CodeUnavailable, op, "object storage request failed").WithField("object_key", key)
}
