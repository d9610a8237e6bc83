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

package database_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/endorse/database"
	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/database/plugin/blob"
	"github.com/blinklabs-io/endorse/database/sops"
	"github.com/blinklabs-io/endorse/database/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAgeRecipient = "age155de5444h84ft33vpvh3xw4nd8uxfzpthqkc4nukrpvn79wkv3esy9h3f6"
	testAgeIdentity  = "AGE-SECRET-KEY-1LRCA6XTMXZ9PDDY97TTUX2LQ6QHXVSG8XEYVFJM9MZF6Y3G2GGFSVV3J3N"
)

func newTestDatabase(t *testing.T, cfg *database.Config) *database.Database {
	t.Helper()
	if cfg == nil {
		cfg = &database.Config{}
	}
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func newTestDocument() *models.Document {
	return &models.Document{
		ID:                uuid.NewString(),
		Title:             "Lease",
		OwnerIdentity:     "owner",
		Status:            models.DocumentStatusDraft,
		SourceArtifactRef: "documents/x/source/a.pdf",
	}
}

func TestCommitKeepsArtifactsAndRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, nil)
	doc := newTestDocument()
	key := database.SourceArtifactKey(doc.ID)

	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := txn.PutArtifact(ctx, key, []byte("%PDF-1.7"), "application/pdf"); err != nil {
			return err
		}
		return db.Metadata().CreateDocument(doc, nil, txn.Metadata())
	})
	require.NoError(t, err)

	got, err := db.GetArtifact(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), got)
	_, err = db.Metadata().GetDocument(doc.ID, false, nil)
	require.NoError(t, err)
}

func TestRollbackRemovesStagedArtifacts(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, nil)
	doc := newTestDocument()
	first := database.EntryArtifactKey(doc.ID, "e1", "png")
	second := database.EntryArtifactKey(doc.ID, "e1", ".pdf")
	errBoom := errors.New("boom")

	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		require.NoError(t, db.Metadata().CreateDocument(doc, nil, txn.Metadata()))
		require.NoError(t, txn.PutArtifact(ctx, first, []byte("a"), "image/png"))
		require.NoError(t, txn.PutArtifact(ctx, second, []byte("b"), "application/pdf"))
		assert.Equal(t, []string{first, second}, txn.StagedArtifacts())
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, err = db.GetArtifact(ctx, first)
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
	_, err = db.GetArtifact(ctx, second)
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)
	_, err = db.Metadata().GetDocument(doc.ID, false, nil)
	require.ErrorIs(t, err, types.ErrRecordNotFound)
}

func TestReadOnlyTxn(t *testing.T) {
	db := newTestDatabase(t, nil)
	txn := db.Transaction(false)
	defer txn.Release()
	assert.Nil(t, txn.Metadata())
	err := txn.PutArtifact(context.Background(), "x", []byte("x"), "text/plain")
	require.ErrorIs(t, err, database.ErrReadOnlyTxn)
	require.NoError(t, txn.Commit())
}

func TestFinishedTxn(t *testing.T) {
	db := newTestDatabase(t, nil)
	txn := db.Transaction(true)
	require.NoError(t, txn.Commit())
	// Second commit and rollback are no-ops
	require.NoError(t, txn.Commit())
	require.NoError(t, txn.Rollback())
	err := txn.PutArtifact(context.Background(), "x", []byte("x"), "text/plain")
	require.Error(t, err)
}

func TestArtifactKeys(t *testing.T) {
	key := database.SourceArtifactKey("doc1")
	assert.True(t, strings.HasPrefix(key, "documents/doc1/source/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NotEqual(t, key, database.SourceArtifactKey("doc1"))

	key = database.EntryArtifactKey("doc1", "entry1", "")
	assert.True(t, strings.HasPrefix(key, "documents/doc1/entries/entry1/"))
	assert.True(t, strings.HasSuffix(key, ".bin"))
}

func TestArtifactURL(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, nil)
	txn := db.Transaction(true)
	require.NoError(t, txn.PutArtifact(ctx, "documents/d/source/s.pdf", []byte("x"), "application/pdf"))
	require.NoError(t, txn.Commit())

	u, err := db.ArtifactURL(ctx, "documents/d/source/s.pdf", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, "documents/d/source/s.pdf?")
	assert.Contains(t, u, "signature=")
}

func TestEncryptedArtifacts(t *testing.T) {
	t.Setenv(sops.EnvAgeRecipients, testAgeRecipient)
	t.Setenv("SOPS_AGE_KEY", testAgeIdentity)
	ctx := context.Background()
	db := newTestDatabase(t, &database.Config{EncryptArtifacts: true})
	plain := []byte("%PDF-1.7 secret contract")

	txn := db.Transaction(true)
	require.NoError(t, txn.PutArtifact(ctx, "documents/d/source/s.pdf", plain, "application/pdf"))
	require.NoError(t, txn.Commit())

	raw, err := db.Blob().Get(ctx, "documents/d/source/s.pdf")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret contract")

	got, err := db.GetArtifact(ctx, "documents/d/source/s.pdf")
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	_, err = db.ArtifactURL(ctx, "documents/d/source/s.pdf", time.Minute)
	require.ErrorIs(t, err, types.ErrSignedURLUnavailable)
}

func TestEncryptionRequiresKeys(t *testing.T) {
	t.Setenv(sops.EnvAgeRecipients, "")
	t.Setenv(sops.EnvGcpKmsResourceID, "")
	t.Setenv(sops.EnvAwsKmsKeyArns, "")
	db, err := database.New(&database.Config{EncryptArtifacts: true})
	require.ErrorIs(t, err, sops.ErrNoMasterKeys)
	assert.Nil(t, db)
}

func TestUnknownPlugins(t *testing.T) {
	_, err := database.New(&database.Config{BlobPlugin: "nope"})
	require.Error(t, err)
	_, err = database.New(&database.Config{MetadataPlugin: "nope"})
	require.Error(t, err)
}

// slowBlobStore blocks until the context ends
type slowBlobStore struct {
	blob.BlobStore
	mu      sync.Mutex
	deletes []string
}

func (s *slowBlobStore) Put(ctx context.Context, _ string, _ []byte, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *slowBlobStore) Get(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *slowBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, key)
	return nil
}

func (s *slowBlobStore) Close() error { return nil }

func TestArtifactTimeout(t *testing.T) {
	base := newTestDatabase(t, nil)
	slow := &slowBlobStore{}
	db, err := database.NewFromStores(
		&database.Config{ArtifactTimeout: 20 * time.Millisecond},
		slow,
		base.Metadata(),
	)
	require.NoError(t, err)

	_, err = db.GetArtifact(context.Background(), "x")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	txn := db.Transaction(true)
	err = txn.PutArtifact(context.Background(), "x", []byte("x"), "text/plain")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, txn.StagedArtifacts())
	require.NoError(t, txn.Rollback())
	assert.Empty(t, slow.deletes)
}

func TestNewFromStoresRequiresStores(t *testing.T) {
	_, err := database.NewFromStores(nil, nil, nil)
	require.ErrorIs(t, err, types.ErrNoStoreAvailable)
}
