// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage moves workbooks to and from S3-compatible object
// storage (IBM Cloud Object Storage in production deployments).
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxObjectSize caps downloaded workbooks at 100MB.
const maxObjectSize = 100 * 1024 * 1024

// Config holds the object storage connection settings.
type Config struct {
	// Endpoint is the S3-compatible service endpoint URL (required).
	Endpoint string

	// Region passed to the SDK; COS accepts any non-empty value.
	Region string

	// Bucket is the default bucket for uploads (required for Upload).
	Bucket string

	// AccessKey and SecretKey are HMAC credentials (required).
	AccessKey string
	SecretKey string
}

// Validate checks for the fields every operation needs.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("storage: endpoint is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("storage: access key and secret key are required")
	}
	return nil
}

// Client reads and writes workbook objects.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New constructs a Client against the configured endpoint.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		cfg.Region = "us-standard"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		// COS buckets are addressed by path, not virtual host.
		o.UsePathStyle = true
	})

	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// Download fetches an object and returns its contents plus the object's
// base filename.
func (c *Client) Download(ctx context.Context, bucket, key string) ([]byte, string, error) {
	if bucket == "" {
		bucket = c.bucket
	}
	if bucket == "" || key == "" {
		return nil, "", fmt.Errorf("storage: bucket and key are required")
	}

	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("storage: failed to download %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("storage: failed to read %s/%s: %w", bucket, key, err)
	}
	if len(data) > maxObjectSize {
		return nil, "", fmt.Errorf("storage: object %s/%s exceeds %d bytes", bucket, key, maxObjectSize)
	}
	return data, path.Base(key), nil
}

// DownloadURL fetches an object referenced by an s3:// or https:// URL.
func (c *Client) DownloadURL(ctx context.Context, rawURL string) ([]byte, string, error) {
	bucket, key, err := ParseObjectURL(rawURL)
	if err != nil {
		return nil, "", err
	}
	return c.Download(ctx, bucket, key)
}

// Upload writes the completed workbook next to the input object and
// returns its key.
func (c *Client) Upload(ctx context.Context, bucket, key string, data []byte) (string, error) {
	if bucket == "" {
		bucket = c.bucket
	}
	if bucket == "" || key == "" {
		return "", fmt.Errorf("storage: bucket and key are required")
	}

	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"),
	})
	if err != nil {
		return "", fmt.Errorf("storage: failed to upload %s/%s: %w", bucket, key, err)
	}
	return key, nil
}

// ParseObjectURL resolves a bucket and key from either an s3://bucket/key
// URL or an https endpoint URL of the form https://host/bucket/key.
func ParseObjectURL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("storage: invalid object URL: %w", err)
	}

	switch u.Scheme {
	case "s3":
		bucket = u.Host
		key = strings.TrimPrefix(u.Path, "/")
	case "http", "https":
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		if len(parts) == 2 {
			bucket, key = parts[0], parts[1]
		}
	default:
		return "", "", fmt.Errorf("storage: unsupported URL scheme %q", u.Scheme)
	}

	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("storage: object URL must name a bucket and key: %s", rawURL)
	}
	return bucket, key, nil
}

// OutputKey derives an upload key for the completed workbook from the
// input key, keeping the input's prefix.
func OutputKey(inputKey, outputName string) string {
	dir := path.Dir(inputKey)
	if dir == "." || dir == "/" {
		return outputName
	}
	return path.Join(dir, outputName)
}
