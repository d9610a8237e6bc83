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

package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/endorse/database/plugin"
	"github.com/blinklabs-io/endorse/database/plugin/blob"
	"github.com/blinklabs-io/endorse/database/plugin/metadata"
	"github.com/blinklabs-io/endorse/database/sops"
	"github.com/blinklabs-io/endorse/database/types"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultBlobPlugin      = "badger"
	DefaultMetadataPlugin  = "sqlite"
	DefaultArtifactTimeout = 30 * time.Second
)

type Config struct {
	PromRegistry   prometheus.Registerer
	Logger         *slog.Logger
	BlobPlugin     string
	MetadataPlugin string
	// DataDir is passed as the data-dir option to plugins that have one. An
	// empty value selects in-memory storage.
	DataDir         string
	ArtifactTimeout time.Duration
	// EncryptArtifacts seals artifact bytes with sops before they reach the
	// blob store
	EncryptArtifacts bool
}

type Database struct {
	logger   *slog.Logger
	blob     blob.BlobStore
	metadata metadata.MetadataStore
	config   Config
}

// New starts the configured blob and metadata plugins
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	cfg := *config
	if cfg.BlobPlugin == "" {
		cfg.BlobPlugin = DefaultBlobPlugin
	}
	if cfg.MetadataPlugin == "" {
		cfg.MetadataPlugin = DefaultMetadataPlugin
	}
	plugin.SetEnvironment(plugin.Environment{
		Logger:       cfg.Logger,
		PromRegistry: cfg.PromRegistry,
	})
	if err := plugin.SetPluginOption(
		plugin.PluginTypeMetadata,
		cfg.MetadataPlugin,
		"data-dir",
		cfg.DataDir,
	); err != nil {
		return nil, err
	}
	if err := plugin.SetPluginOption(
		plugin.PluginTypeBlob,
		cfg.BlobPlugin,
		"data-dir",
		cfg.DataDir,
	); err != nil {
		return nil, err
	}
	metadataDb, err := metadata.New(cfg.MetadataPlugin)
	if err != nil {
		return nil, err
	}
	blobDb, err := blob.New(cfg.BlobPlugin)
	if err != nil {
		_ = metadataDb.Close()
		return nil, err
	}
	db, err := NewFromStores(&cfg, blobDb, metadataDb)
	if err != nil {
		_ = metadataDb.Close()
		_ = blobDb.Close()
		return nil, err
	}
	return db, nil
}

// NewFromStores wraps already started stores
func NewFromStores(
	config *Config,
	blobStore blob.BlobStore,
	metadataStore metadata.MetadataStore,
) (*Database, error) {
	if blobStore == nil || metadataStore == nil {
		return nil, types.ErrNoStoreAvailable
	}
	db := &Database{
		blob:     blobStore,
		metadata: metadataStore,
	}
	if config != nil {
		db.config = *config
		db.logger = config.Logger
	}
	if err := db.init(); err != nil {
		return nil, err
	}
	return db, nil
}

func (d *Database) init() error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if d.config.ArtifactTimeout <= 0 {
		d.config.ArtifactTimeout = DefaultArtifactTimeout
	}
	if d.config.EncryptArtifacts && !sops.Configured() {
		return sops.ErrNoMasterKeys
	}
	return nil
}

// Blob returns the underlying blob store instance
func (d *Database) Blob() blob.BlobStore {
	return d.blob
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Transaction starts a new database transaction and returns a handle to it
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewTxn(d, readWrite)
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	if d.metadata != nil {
		err = errors.Join(err, d.metadata.Close())
	}
	if d.blob != nil {
		err = errors.Join(err, d.blob.Close())
	}
	return err
}

// ArtifactTimeout is the deadline applied to each artifact operation
func (d *Database) ArtifactTimeout() time.Duration {
	return d.config.ArtifactTimeout
}

func (d *Database) artifactContext(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.config.ArtifactTimeout)
}

// GetArtifact reads an artifact, decrypting it when encryption is enabled
func (d *Database) GetArtifact(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := d.artifactContext(ctx)
	defer cancel()
	data, err := d.blob.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", key, err)
	}
	if d.config.EncryptArtifacts {
		data, err = sops.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("decrypt artifact %s: %w", key, err)
		}
	}
	return data, nil
}

// putArtifact writes an artifact outside of any transaction
func (d *Database) putArtifact(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) error {
	if d.config.EncryptArtifacts {
		sealed, err := sops.Encrypt(data)
		if err != nil {
			return fmt.Errorf("encrypt artifact %s: %w", key, err)
		}
		data = sealed
	}
	ctx, cancel := d.artifactContext(ctx)
	defer cancel()
	if err := d.blob.Put(ctx, key, data, contentType); err != nil {
		return fmt.Errorf("put artifact %s: %w", key, err)
	}
	return nil
}

func (d *Database) deleteArtifact(ctx context.Context, key string) error {
	ctx, cancel := d.artifactContext(ctx)
	defer cancel()
	return d.blob.Delete(ctx, key)
}

// ArtifactURL returns a time-limited download URL for an artifact. Encrypted
// artifacts cannot be served this way.
func (d *Database) ArtifactURL(
	ctx context.Context,
	key string,
	ttl time.Duration,
) (string, error) {
	if d.config.EncryptArtifacts {
		return "", types.ErrSignedURLUnavailable
	}
	ctx, cancel := d.artifactContext(ctx)
	defer cancel()
	return d.blob.SignedURL(ctx, key, ttl)
}
