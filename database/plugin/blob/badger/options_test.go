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
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestWithDataDir(t *testing.T) {
	b := &BlobStoreBadger{}
	WithDataDir("/tmp/test")(b)
	assert.Equal(t, "/tmp/test", b.dataDir)
}

func TestWithLogger(t *testing.T) {
	b := &BlobStoreBadger{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	WithLogger(logger)(b)
	assert.Same(t, logger, b.logger)
}

func TestWithPromRegistry(t *testing.T) {
	b := &BlobStoreBadger{}
	registry := prometheus.NewRegistry()
	WithPromRegistry(registry)(b)
	assert.Equal(t, registry, b.promRegistry)
}

func TestWithGc(t *testing.T) {
	b := &BlobStoreBadger{}
	WithGc(true)(b)
	assert.True(t, b.gcEnabled)
	WithGc(false)(b)
	assert.False(t, b.gcEnabled)
}

func TestOptionsCombination(t *testing.T) {
	b := &BlobStoreBadger{}
	WithDataDir("/tmp/combined")(b)
	WithBlockCacheSize(1000000)(b)
	WithIndexCacheSize(2000000)(b)
	WithValueLogFileSize(3000000)(b)
	WithMemTableSize(4000000)(b)
	WithValueThreshold(4096)(b)
	WithURLBase("https://docs.example.com/artifacts")(b)
	WithURLSigningKey([]byte("secret"))(b)

	assert.Equal(t, "/tmp/combined", b.dataDir)
	assert.Equal(t, uint64(1000000), b.blockCacheSize)
	assert.Equal(t, uint64(2000000), b.indexCacheSize)
	assert.Equal(t, int64(3000000), b.valueLogFileSize)
	assert.Equal(t, int64(4000000), b.memTableSize)
	assert.Equal(t, int64(4096), b.valueThreshold)
	assert.Equal(t, "https://docs.example.com/artifacts", b.urlBase)
	assert.Equal(t, []byte("secret"), b.urlSigningKey)
}

func TestChunkSize(t *testing.T) {
	b := &BlobStoreBadger{valueThreshold: DefaultValueThreshold}
	assert.Equal(t, artifactChunkSize, b.chunkSize())
	b.valueThreshold = 1024
	assert.Equal(t, 1024, b.chunkSize())
	b.dataDir = "/tmp/x"
	assert.Equal(t, artifactChunkSize, b.chunkSize())
}
