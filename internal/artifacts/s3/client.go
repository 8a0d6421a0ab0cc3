/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package s3 stores job artifacts in an S3-compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/llm-d-incubation/llm-batch-engine/internal/artifacts/api"
)

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type uploaderAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type Client struct {
	s3Client      s3API
	uploader      uploaderAPI
	bucket        string
	prefix        string
	fileSizeLimit int64
}

var _ api.Store = (*Client)(nil)

func New(ctx context.Context, cfg api.S3Config, fileSizeLimit int64) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 artifact store requires a bucket")
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	if fileSizeLimit <= 0 {
		fileSizeLimit = api.DefaultFileSizeLimit
	}
	return &Client{
		s3Client:      s3Client,
		uploader:      manager.NewUploader(s3Client),
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		fileSizeLimit: fileSizeLimit,
	}, nil
}

func (c *Client) resolveKey(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + "/" + name
}

// limitedCountingReader fails the upload once more than limit bytes were read.
type limitedCountingReader struct {
	reader    io.Reader
	limit     int64
	bytesRead int64
}

func (r *limitedCountingReader) Read(p []byte) (n int, err error) {
	n, err = r.reader.Read(p)
	r.bytesRead += int64(n)
	if r.bytesRead > r.limit {
		return n, api.ErrFileTooLarge
	}
	return n, err
}

func (c *Client) Store(ctx context.Context, name string, reader io.Reader) (*api.Metadata, error) {
	key := c.resolveKey(name)

	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return nil, api.ErrFileExists
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return nil, fmt.Errorf("failed to check if object exists: %w", err)
	}

	countingReader := &limitedCountingReader{reader: reader, limit: c.fileSizeLimit}
	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        countingReader,
		ContentType: aws.String("application/jsonl"),
	})
	if err != nil {
		if errors.Is(err, api.ErrFileTooLarge) {
			return nil, api.ErrFileTooLarge
		}
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}

	return &api.Metadata{
		Location: "s3://" + c.bucket + "/" + key,
		Size:     countingReader.bytesRead,
		ModTime:  time.Now(),
	}, nil
}

func (c *Client) Retrieve(ctx context.Context, name string) (io.ReadCloser, *api.Metadata, error) {
	key := c.resolveKey(name)

	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, nil, os.ErrNotExist
		}
		return nil, nil, fmt.Errorf("failed to get object: %w", err)
	}

	modTime := time.Now()
	if out.LastModified != nil {
		modTime = *out.LastModified
	}
	return out.Body, &api.Metadata{
		Location: "s3://" + c.bucket + "/" + key,
		Size:     aws.ToInt64(out.ContentLength),
		ModTime:  modTime,
	}, nil
}

func (c *Client) Close() error {
	return nil
}
