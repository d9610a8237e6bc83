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

package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/blinklabs-io/endorse/database/plugin/blob/internal/bloblog"
	"github.com/blinklabs-io/endorse/database/plugin/blob/internal/blobmetrics"
	"github.com/blinklabs-io/endorse/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"
)

// BlobStoreGCS stores artifacts in a Google Cloud Storage bucket
type BlobStoreGCS struct {
	promRegistry    prometheus.Registerer
	logger          *bloblog.Logger
	client          *storage.Client
	bucket          *storage.BucketHandle
	metrics         *blobmetrics.Metrics
	bucketName      string
	prefix          string
	credentialsFile string
}

// New creates a new GCS-backed artifact store. The location must be
// "gcs://<bucket>[/prefix]".
func New(
	location string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*BlobStoreGCS, error) {
	path, ok := strings.CutPrefix(location, "gcs://")
	if !ok || path == "" {
		return nil, errors.New(
			"gcs blob: bucket not set (expected 'gcs://<bucket>[/prefix]')",
		)
	}
	bucketName, prefix, _ := strings.Cut(path, "/")
	if bucketName == "" {
		return nil, errors.New("gcs blob: invalid location (missing bucket)")
	}
	return NewWithOptions(
		WithBucket(bucketName),
		WithPrefix(prefix),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
}

// NewWithOptions creates a new GCS-backed artifact store using options. The
// client is created by Start.
func NewWithOptions(opts ...BlobStoreGCSOptionFunc) (*BlobStoreGCS, error) {
	db := &BlobStoreGCS{}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = bloblog.New(nil, "gcs")
	}
	return db, nil
}

// ValidateCredentials checks that a credentials file exists and is readable
func ValidateCredentials(credentialsFile string) error {
	if credentialsFile == "" {
		return nil
	}
	info, err := os.Stat(credentialsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf(
				"GCS credentials file does not exist: %s",
				credentialsFile,
			)
		}
		return fmt.Errorf("GCS credentials file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(
			"GCS credentials file is a directory: %s",
			credentialsFile,
		)
	}
	return nil
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreGCS) Start() error {
	if d.bucketName == "" {
		return errors.New("gcs blob: bucket not set")
	}
	if err := ValidateCredentials(d.credentialsFile); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	clientOpts := []option.ClientOption{storage.WithDisabledClientMetrics()}
	if d.credentialsFile != "" {
		clientOpts = append(
			clientOpts,
			option.WithCredentialsFile(d.credentialsFile),
		)
	}
	client, err := storage.NewGRPCClient(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf(
			"gcs blob: failed in creating storage client: %w",
			err,
		)
	}
	d.client = client
	d.bucket = client.Bucket(d.bucketName)
	metrics, err := blobmetrics.New(d.promRegistry, "gcs")
	if err != nil {
		_ = d.Close()
		return err
	}
	d.metrics = metrics
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreGCS) Stop() error {
	return d.Close()
}

// Close closes the GCS client
func (d *BlobStoreGCS) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	d.bucket = nil
	return err
}

func (d *BlobStoreGCS) object(key string) (*storage.ObjectHandle, error) {
	if d.bucket == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	return d.bucket.Object(d.objectName(key)), nil
}

func (d *BlobStoreGCS) objectName(key string) string {
	name := types.CleanArtifactPath(key)
	if prefix := types.CleanArtifactPath(d.prefix); prefix != "" {
		return prefix + "/" + name
	}
	return name
}

// Put uploads an artifact with its content type
func (d *BlobStoreGCS) Put(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) error {
	obj, err := d.object(key)
	if err != nil {
		return err
	}
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		d.logger.Errorf("gcs put %q failed: %v", key, err)
		return err
	}
	if err := w.Close(); err != nil {
		d.logger.Errorf("gcs put %q failed: %v", key, err)
		return err
	}
	d.logger.Debugf("gcs put %q ok (%d bytes)", key, len(data))
	d.metrics.Observe("put", len(data))
	return nil
}

// Get downloads an artifact
func (d *BlobStoreGCS) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := d.object(key)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, types.ErrBlobKeyNotFound
		}
		d.logger.Errorf("gcs get %q failed: %v", key, err)
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		d.logger.Errorf("gcs read %q failed: %v", key, err)
		return nil, err
	}
	d.metrics.Observe("get", len(data))
	return data, nil
}

// Delete removes an artifact
func (d *BlobStoreGCS) Delete(ctx context.Context, key string) error {
	obj, err := d.object(key)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return types.ErrBlobKeyNotFound
		}
		d.logger.Errorf("gcs delete %q failed: %v", key, err)
		return err
	}
	d.metrics.Observe("delete", 0)
	return nil
}

// SignedURL returns a V4 signed GET URL. Signing requires service account
// credentials.
func (d *BlobStoreGCS) SignedURL(
	ctx context.Context,
	key string,
	ttl time.Duration,
) (string, error) {
	obj, err := d.object(key)
	if err != nil {
		return "", err
	}
	if _, err := obj.Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", types.ErrBlobKeyNotFound
		}
		return "", err
	}
	ret, err := d.bucket.SignedURL(
		d.objectName(key),
		&storage.SignedURLOptions{
			Scheme:  storage.SigningSchemeV4,
			Method:  "GET",
			Expires: time.Now().Add(ttl),
		},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrSignedURLUnavailable, err)
	}
	return ret, nil
}
