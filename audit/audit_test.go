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

package audit_test

import (
	"testing"

	"github.com/blinklabs-io/endorse/audit"
	"github.com/blinklabs-io/endorse/database"
	"github.com/blinklabs-io/endorse/database/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*audit.Recorder, *database.Database, string) {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	doc := &models.Document{
		ID:                uuid.NewString(),
		Title:             "NDA",
		OwnerIdentity:     "owner",
		Status:            models.DocumentStatusDraft,
		SourceArtifactRef: "documents/x/source/y.pdf",
	}
	require.NoError(t, db.Metadata().CreateDocument(doc, nil, nil))
	return audit.NewRecorder(db, nil), db, doc.ID
}

func TestRecordAndTrailOrder(t *testing.T) {
	r, _, docID := setup(t)
	actions := []models.AuditAction{
		models.AuditActionCreated,
		models.AuditActionActivated,
		models.AuditActionSigned,
		models.AuditActionSigned,
	}
	for _, action := range actions {
		_, err := r.Record(nil, docID, "alice", action, "")
		require.NoError(t, err)
	}
	trail, err := r.Trail(docID, nil)
	require.NoError(t, err)
	require.Len(t, trail, len(actions))
	for i, entry := range trail {
		assert.Equal(t, actions[i], entry.Action)
		assert.Equal(t, "alice", entry.ActorIdentity)
	}
}

func TestRecordUnknownDocument(t *testing.T) {
	r, _, _ := setup(t)
	_, err := r.Record(nil, uuid.NewString(), "alice", models.AuditActionSigned, "")
	require.ErrorIs(t, err, audit.ErrDocumentNotFound)
}

func TestRecordEmptyActor(t *testing.T) {
	r, _, docID := setup(t)
	_, err := r.Record(nil, docID, "", models.AuditActionSigned, "")
	require.ErrorIs(t, err, audit.ErrEmptyActor)
}

func TestRecordRollsBackWithTransaction(t *testing.T) {
	r, db, docID := setup(t)
	txn := db.Transaction(true)
	_, err := r.Record(txn, docID, "admin", models.AuditActionStatusChanged, "draft -> signed")
	require.NoError(t, err)
	require.NoError(t, txn.Rollback())

	trail, err := r.Trail(docID, nil)
	require.NoError(t, err)
	assert.Empty(t, trail)
}
