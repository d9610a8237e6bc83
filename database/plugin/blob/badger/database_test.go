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

package badger_test

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/endorse/database/plugin/blob/badger"
	"github.com/blinklabs-io/endorse/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(
	t *testing.T,
	opts ...badger.BlobStoreBadgerOptionFunc,
) *badger.BlobStoreBadger {
	t.Helper()
	store, err := badger.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	data := []byte("%PDF-1.7\n%%EOF\n")

	require.NoError(t, store.Put(ctx, "documents/1/source/a.pdf", data, "application/pdf"))

	got, err := store.Get(ctx, "documents/1/source/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ct, err := store.ContentType(ctx, "/documents/1/source/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", ct)

	require.NoError(t, store.Delete(ctx, "documents/1/source/a.pdf"))
	_, err = store.Get(ctx, "documents/1/source/a.pdf")
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
	require.ErrorIs(
		t,
		store.Delete(ctx, "documents/1/source/a.pdf"),
		types.ErrBlobKeyNotFound,
	)
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
	_, err = store.ContentType(context.Background(), "nope")
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
}

func TestPutEmpty(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Put(ctx, "empty", nil, "application/octet-stream"))
	got, err := store.Get(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPutLargeArtifactInMemory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	// Larger than the value threshold and spanning a partial final chunk
	data := bytes.Repeat([]byte("0123456789abcdef"), 200000)
	require.NoError(t, store.Put(ctx, "big.pdf", data, "application/pdf"))
	got, err := store.Get(ctx, "big.pdf")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// A shorter replacement leaves no stale trailing chunks
	require.NoError(t, store.Put(ctx, "big.pdf", []byte("short"), "application/pdf"))
	got, err = store.Get(ctx, "big.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("short"), got)
}

func TestPrefixIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Put(ctx, "a.pdf", []byte("one"), "application/pdf"))
	require.NoError(t, store.Put(ctx, "a.pdf.bak", []byte("two"), "application/pdf"))
	got, err := store.Get(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)
	require.NoError(t, store.Delete(ctx, "a.pdf"))
	got, err = store.Get(ctx, "a.pdf.bak")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)
}

func TestOnDiskReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	data := bytes.Repeat([]byte{0x42}, 700000)

	store, err := badger.New(badger.WithDataDir(dir), badger.WithGc(false))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "x.pdf", data, "application/pdf"))
	require.NoError(t, store.Close())

	store, err = badger.New(badger.WithDataDir(dir), badger.WithGc(false))
	require.NoError(t, err)
	defer store.Close()
	got, err := store.Get(ctx, "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCanceledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, store.Put(ctx, "x", []byte("x"), "text/plain"), context.Canceled)
	_, err := store.Get(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}

func parseSignedURL(t *testing.T, raw string) (string, int64, string) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	expires, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	require.NoError(t, err)
	return strings.TrimPrefix(u.Path, "/artifacts/"), expires, u.Query().Get("signature")
}

func TestSignedURL(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(
		t,
		badger.WithURLBase("https://docs.example.com/artifacts/"),
		badger.WithURLSigningKey([]byte("test-key")),
	)
	require.NoError(t, store.Put(ctx, "documents/1/signed 1.pdf", []byte("x"), "application/pdf"))

	raw, err := store.SignedURL(ctx, "documents/1/signed 1.pdf", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "https://docs.example.com/artifacts/documents/1/signed%201.pdf?"))

	key, expires, sig := parseSignedURL(t, raw)
	assert.Equal(t, "documents/1/signed 1.pdf", key)
	require.NoError(t, store.VerifySignedURL(key, expires, sig))
	require.NoError(t, store.VerifySignedURL(key, expires, strings.ToUpper(sig)))

	require.ErrorIs(
		t,
		store.VerifySignedURL("documents/1/other.pdf", expires, sig),
		badger.ErrSignatureInvalid,
	)
	require.ErrorIs(
		t,
		store.VerifySignedURL(key, expires+1, sig),
		badger.ErrSignatureInvalid,
	)

	_, err = store.SignedURL(ctx, "documents/1/missing.pdf", time.Minute)
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
}

func TestSignedURLExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Put(ctx, "x.pdf", []byte("x"), "application/pdf"))
	raw, err := store.SignedURL(ctx, "x.pdf", -time.Minute)
	require.NoError(t, err)
	key, expires, sig := parseSignedURL(t, raw)
	require.ErrorIs(t, store.VerifySignedURL(key, expires, sig), badger.ErrSignatureExpired)
}

func TestSignedURLKeyScope(t *testing.T) {
	ctx := context.Background()
	first := newTestStore(t)
	second := newTestStore(t)
	require.NoError(t, first.Put(ctx, "x.pdf", []byte("x"), "application/pdf"))
	raw, err := first.SignedURL(ctx, "x.pdf", time.Minute)
	require.NoError(t, err)
	key, expires, sig := parseSignedURL(t, raw)
	// Ephemeral keys differ per store
	require.ErrorIs(t, second.VerifySignedURL(key, expires, sig), badger.ErrSignatureInvalid)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	store := newTestStore(t, badger.WithPromRegistry(reg))
	// A second store on the same registry shares collectors
	_ = newTestStore(t, badger.WithPromRegistry(reg))

	require.NoError(t, store.Put(ctx, "x", []byte("12345"), "text/plain"))
	_, err := store.Get(ctx, "x")
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "database_blob_ops_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = testutil.GatherAndCount(reg, "database_blob_bytes_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCloseWithGc(t *testing.T) {
	store, err := badger.New(badger.WithDataDir(t.TempDir()), badger.WithGc(true))
	require.NoError(t, err)
	require.NoError(t, store.Close())
	// Closing twice is harmless
	require.NoError(t, store.Close())
}
