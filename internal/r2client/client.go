// Package r2client talks to Cloudflare R2 through the S3 API. It carries
// the conditional writes the publish lock needs and zstd helpers for
// snapshot files.
package r2client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("r2client: object not found")

// Store is the object storage surface used by Lock and the snapshot manager.
// *Client implements it.
type Store interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	Head(ctx context.Context, key string) (string, error)
	PutIfNotExists(ctx context.Context, key string, body io.Reader, contentType string) (bool, string, error)
	PutIfMatch(ctx context.Context, key string, body io.Reader, etag, contentType string) (bool, string, error)
	Delete(ctx context.Context, key string) error
}

// Config holds R2 connection settings.
type Config struct {
	Endpoint    string // e.g. https://<account>.r2.cloudflarestorage.com
	AccessKeyID string
	SecretKey   string
	BucketName  string
}

// Client is an R2 bucket handle.
type Client struct {
	s3     *s3.Client
	bucket string
}

var _ Store = (*Client)(nil)

// New creates a client for cfg.Bucket.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretKey == "" || cfg.BucketName == "" {
		return nil, errors.New("r2client: endpoint, credentials and bucket are required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("r2client: load aws config: %w", err)
	}

	return &Client{
		s3: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}),
		bucket: cfg.BucketName,
	}, nil
}

// Upload writes an object and returns its ETag.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	out, err := c.s3.PutObject(ctx, c.putInput(key, body, contentType))
	if err != nil {
		return "", fmt.Errorf("r2client: upload %q: %w", key, err)
	}
	return trimETag(out.ETag), nil
}

// Download returns the object body and ETag. The caller closes the body.
func (c *Client) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("r2client: download %q: %w", key, err)
	}
	return out.Body, trimETag(out.ETag), nil
}

// Head returns the ETag of key without fetching the body.
func (c *Client) Head(ctx context.Context, key string) (string, error) {
	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("r2client: head %q: %w", key, err)
	}
	return trimETag(out.ETag), nil
}

// PutIfNotExists creates key only when absent (If-None-Match: *).
// Reports false without error when the object already exists.
func (c *Client) PutIfNotExists(ctx context.Context, key string, body io.Reader, contentType string) (bool, string, error) {
	in := c.putInput(key, body, contentType)
	in.IfNoneMatch = aws.String("*")

	out, err := c.s3.PutObject(ctx, in)
	if err != nil {
		if isPreconditionFailed(err) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("r2client: put if not exists %q: %w", key, err)
	}
	return true, trimETag(out.ETag), nil
}

// PutIfMatch overwrites key only while its ETag is still etag.
// Reports false without error on a mismatch.
func (c *Client) PutIfMatch(ctx context.Context, key string, body io.Reader, etag, contentType string) (bool, string, error) {
	in := c.putInput(key, body, contentType)
	in.IfMatch = aws.String(`"` + etag + `"`)

	out, err := c.s3.PutObject(ctx, in)
	if err != nil {
		if isPreconditionFailed(err) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("r2client: put if match %q: %w", key, err)
	}
	return true, trimETag(out.ETag), nil
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("r2client: delete %q: %w", key, err)
	}
	return nil
}

func (c *Client) putInput(key string, body io.Reader, contentType string) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	return in
}

func trimETag(etag *string) string {
	if etag == nil {
		return ""
	}
	return strings.Trim(*etag, `"`)
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusPreconditionFailed {
		return true
	}
	return strings.Contains(err.Error(), "PreconditionFailed")
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
