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

package badger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blinklabs-io/endorse/database/plugin/blob/internal/bloblog"
	"github.com/blinklabs-io/endorse/database/plugin/blob/internal/blobmetrics"
	"github.com/blinklabs-io/endorse/database/types"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"
)

// Default sizes for BadgerDB (in bytes)
const (
	DefaultBlockCacheSize   = 268435456 // 256MB
	DefaultIndexCacheSize   = 67108864  // 64MB
	DefaultValueLogFileSize = 268435456 // 256MB
	DefaultMemTableSize     = 67108864  // 64MB
	DefaultValueThreshold   = 1048576   // 1MB
)

const artifactChunkSize = 262144 // 256KB

// BlobStoreBadger stores artifacts in badger. Data is not persisted when
// no data directory is configured.
type BlobStoreBadger struct {
	promRegistry     prometheus.Registerer
	db               *badger.DB
	logger           *slog.Logger
	metrics          *blobmetrics.Metrics
	gcTicker         *time.Ticker
	gcStopCh         chan struct{}
	dataDir          string
	urlBase          string
	urlSigningKey    []byte
	gcWg             sync.WaitGroup
	blockCacheSize   uint64
	indexCacheSize   uint64
	valueLogFileSize int64
	memTableSize     int64
	valueThreshold   int64
	gcEnabled        bool
}

// New creates a new database
func New(opts ...BlobStoreBadgerOptionFunc) (*BlobStoreBadger, error) {
	db := &BlobStoreBadger{
		// Set defaults
		gcEnabled:        true, // Enable GC by default for disk-backed stores
		blockCacheSize:   DefaultBlockCacheSize,
		indexCacheSize:   DefaultIndexCacheSize,
		valueLogFileSize: int64(DefaultValueLogFileSize),
		memTableSize:     int64(DefaultMemTableSize),
		valueThreshold:   int64(DefaultValueThreshold),
		urlBase:          DefaultURLBase,
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var badgerOpts badger.Options
	if db.dataDir == "" {
		// No dataDir, use in-memory config
		badgerOpts = badger.DefaultOptions("").
			WithInMemory(true)
		// Value log GC does not apply to in-memory stores
		db.gcEnabled = false
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(db.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(db.dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		blobDir := filepath.Join(
			db.dataDir,
			"blob",
		)
		badgerOpts = badger.DefaultOptions(blobDir).
			WithBlockCacheSize(int64(db.blockCacheSize)). //nolint:gosec // blockCacheSize is controlled and reasonable
			WithIndexCacheSize(int64(db.indexCacheSize)). //nolint:gosec // indexCacheSize is controlled and reasonable
			WithValueLogFileSize(db.valueLogFileSize).
			WithMemTableSize(db.memTableSize).
			// PDFs are already compressed
			WithCompression(options.None)
	}
	badgerOpts = badgerOpts.
		WithLogger(bloblog.New(db.logger, "badger")).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING).
		WithValueThreshold(db.valueThreshold)
	blobDb, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	db.db = blobDb
	if err := db.init(); err != nil {
		return db, err
	}
	return db, nil
}

func (d *BlobStoreBadger) init() error {
	// Configure metrics
	metrics, err := blobmetrics.New(d.promRegistry, "badger")
	if err != nil {
		return err
	}
	d.metrics = metrics
	if err := d.initURLSigning(); err != nil {
		return err
	}
	// Configure GC
	if d.gcEnabled {
		d.gcTicker = time.NewTicker(5 * time.Minute)
		d.gcStopCh = make(chan struct{})
		d.gcWg.Add(1)
		go d.blobGc(d.gcTicker, d.gcStopCh)
	}
	return nil
}

func (d *BlobStoreBadger) blobGc(t *time.Ticker, stop <-chan struct{}) {
	defer d.gcWg.Done()
	for {
		select {
		case <-t.C:
			// Keep collecting while each pass rewrites a value log file
			for {
				err := d.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					d.logger.Warn(
						fmt.Sprintf("blob DB: GC failure: %s", err),
						"component", "database",
					)
				}
				break
			}
		case <-stop:
			return
		}
	}
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreBadger) Start() error {
	// Database is already started in New(), so this is a no-op
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreBadger) Stop() error {
	return d.Close()
}

// Close stops background GC and closes the database handle
func (d *BlobStoreBadger) Close() error {
	if d.gcTicker != nil {
		d.gcTicker.Stop()
		if d.gcStopCh != nil {
			close(d.gcStopCh)
			d.gcStopCh = nil
		}
		// Wait for GC goroutine to finish
		d.gcWg.Wait()
		d.gcTicker = nil
	}
	if d.db == nil || d.db.IsClosed() {
		return nil
	}
	return d.db.Close()
}

// DB returns the database handle
func (d *BlobStoreBadger) DB() *badger.DB {
	return d.db
}

// Put stores an artifact and its content type. Artifact bytes are split into
// chunks so that large documents fit within badger's per-value and
// per-transaction limits.
func (d *BlobStoreBadger) Put(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Replace any previous artifact at this path
	if err := d.deleteChunks(key); err != nil {
		return err
	}
	chunkSize := d.chunkSize()
	wb := d.db.NewWriteBatch()
	defer wb.Cancel()
	var chunk uint32
	for offset := 0; offset < len(data) || chunk == 0; offset += chunkSize {
		end := min(offset+chunkSize, len(data))
		if err := wb.Set(
			types.ArtifactChunkBlobKey(key, chunk),
			data[offset:end],
		); err != nil {
			return fmt.Errorf("write artifact chunk: %w", err)
		}
		chunk++
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush artifact chunks: %w", err)
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(
			types.ArtifactContentTypeBlobKey(key),
			[]byte(contentType),
		)
	})
	if err != nil {
		return err
	}
	d.metrics.Observe("put", len(data))
	return nil
}

func (d *BlobStoreBadger) chunkSize() int {
	ret := artifactChunkSize
	// In-memory stores reject values above the value threshold
	if d.dataDir == "" && d.valueThreshold > 0 &&
		d.valueThreshold < int64(ret) {
		ret = int(d.valueThreshold)
	}
	return ret
}

// Get retrieves an artifact
func (d *BlobStoreBadger) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ret []byte
	err := d.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(types.ArtifactContentTypeBlobKey(key)); err != nil {
			return err
		}
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = types.ArtifactChunkBlobKeyPrefix(key)
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		ret = []byte{}
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ret = append(ret, val...)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, types.ErrBlobKeyNotFound
		}
		return nil, err
	}
	d.metrics.Observe("get", len(ret))
	return ret, nil
}

// ContentType returns the content type recorded for an artifact
func (d *BlobStoreBadger) ContentType(
	ctx context.Context,
	key string,
) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var ret string
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(types.ArtifactContentTypeBlobKey(key))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		ret = string(val)
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", types.ErrBlobKeyNotFound
		}
		return "", err
	}
	return ret, nil
}

// Delete removes an artifact
func (d *BlobStoreBadger) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		ctKey := types.ArtifactContentTypeBlobKey(key)
		if _, err := txn.Get(ctKey); err != nil {
			return err
		}
		return txn.Delete(ctKey)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return types.ErrBlobKeyNotFound
		}
		return err
	}
	if err := d.deleteChunks(key); err != nil {
		return err
	}
	d.metrics.Observe("delete", 0)
	return nil
}

func (d *BlobStoreBadger) deleteChunks(key string) error {
	var chunkKeys [][]byte
	err := d.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = types.ArtifactChunkBlobKeyPrefix(key)
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			chunkKeys = append(chunkKeys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(chunkKeys) == 0 {
		return nil
	}
	wb := d.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range chunkKeys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("delete artifact chunk: %w", err)
		}
	}
	return wb.Flush()
}
