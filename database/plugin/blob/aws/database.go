// Copyright 2025 Blink Labs Software
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

package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/blinklabs-io/endorse/database/plugin/blob/internal/bloblog"
	"github.com/blinklabs-io/endorse/database/plugin/blob/internal/blobmetrics"
	"github.com/blinklabs-io/endorse/database/types"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultTimeout = 60 * time.Second

// BlobStoreS3 stores artifacts in an AWS S3 bucket
type BlobStoreS3 struct {
	promRegistry prometheus.Registerer
	logger       *bloblog.Logger
	client       *s3.Client
	presign      *s3.PresignClient
	metrics      *blobmetrics.Metrics
	bucket       string
	prefix       string
	region       string
	endpoint     string
	timeout      time.Duration
}

// New creates a new S3-backed artifact store. The location must be
// "s3://<bucket>[/prefix]".
func New(
	location string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*BlobStoreS3, error) {
	path, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return nil, errors.New(
			"s3 blob: expected location 's3://<bucket>[/prefix]'",
		)
	}
	if path == "" {
		return nil, errors.New("s3 blob: bucket not set")
	}
	bucket, keyPrefix, _ := strings.Cut(path, "/")
	if bucket == "" {
		return nil, errors.New("s3 blob: invalid S3 path (missing bucket)")
	}
	return NewWithOptions(
		WithBucket(bucket),
		WithPrefix(keyPrefix),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
}

// NewWithOptions creates a new S3-backed artifact store using options. AWS
// config is loaded by Start.
func NewWithOptions(opts ...BlobStoreS3OptionFunc) (*BlobStoreS3, error) {
	db := &BlobStoreS3{}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = bloblog.New(nil, "s3")
	}
	return db, nil
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreS3) Start() error {
	if d.bucket == "" {
		return errors.New("s3 blob: bucket not set")
	}
	ctx, cancel := d.opContext(context.Background())
	defer cancel()
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("s3 blob: load default AWS config: %w", err)
	}
	if d.region != "" {
		awsCfg.Region = d.region
	}
	d.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if d.endpoint != "" {
			o.BaseEndpoint = aws.String(d.endpoint)
			// Local S3 implementations generally lack virtual host routing
			o.UsePathStyle = true
		}
	})
	d.presign = s3.NewPresignClient(d.client)
	metrics, err := blobmetrics.New(d.promRegistry, "s3")
	if err != nil {
		return err
	}
	d.metrics = metrics
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreS3) Stop() error {
	return d.Close()
}

// Close releases the client. The S3 client holds no resources needing
// explicit cleanup.
func (d *BlobStoreS3) Close() error {
	d.client = nil
	d.presign = nil
	return nil
}

func (d *BlobStoreS3) opContext(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	timeout := d.timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// objectKey returns the S3 key for an artifact path with the optional prefix
func (d *BlobStoreS3) objectKey(key string) string {
	name := types.CleanArtifactPath(key)
	if prefix := types.CleanArtifactPath(d.prefix); prefix != "" {
		return prefix + "/" + name
	}
	return name
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *s3types.NotFound
	return errors.As(err, &notFound)
}

// Put uploads an artifact with its content type
func (d *BlobStoreS3) Put(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) error {
	if d.client == nil {
		return types.ErrBlobStoreUnavailable
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		d.logger.Errorf("s3 put %q failed: %v", key, err)
		return err
	}
	d.logger.Debugf("s3 put %q ok (%d bytes)", key, len(data))
	d.metrics.Observe("put", len(data))
	return nil
}

// Get downloads an artifact
func (d *BlobStoreS3) Get(ctx context.Context, key string) ([]byte, error) {
	if d.client == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, types.ErrBlobKeyNotFound
		}
		d.logger.Errorf("s3 get %q failed: %v", key, err)
		return nil, err
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		d.logger.Errorf("s3 read %q failed: %v", key, err)
		return nil, err
	}
	d.metrics.Observe("get", len(data))
	return data, nil
}

// Delete removes an artifact. S3 deletes are idempotent, so existence is
// checked first to report missing keys.
func (d *BlobStoreS3) Delete(ctx context.Context, key string) error {
	if d.client == nil {
		return types.ErrBlobStoreUnavailable
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	if err := d.head(ctx, key); err != nil {
		return err
	}
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
	})
	if err != nil {
		d.logger.Errorf("s3 delete %q failed: %v", key, err)
		return err
	}
	d.metrics.Observe("delete", 0)
	return nil
}

func (d *BlobStoreS3) head(ctx context.Context, key string) error {
	_, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return types.ErrBlobKeyNotFound
		}
		return err
	}
	return nil
}

// SignedURL returns a presigned GET URL valid for ttl
func (d *BlobStoreS3) SignedURL(
	ctx context.Context,
	key string,
	ttl time.Duration,
) (string, error) {
	if d.client == nil {
		return "", types.ErrBlobStoreUnavailable
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	if err := d.head(ctx, key); err != nil {
		return "", err
	}
	req, err := d.presign.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(d.objectKey(key)),
		},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrSignedURLUnavailable, err)
	}
	return req.URL, nil
}

// Client returns the S3 client. It is nil until Start succeeds.
func (d *BlobStoreS3) Client() *s3.Client {
	return d.client
}
