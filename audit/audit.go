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

package audit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/endorse/database"
	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/database/types"
	"github.com/google/uuid"
)

var (
	ErrDocumentNotFound = errors.New("audit: document not found")
	ErrEmptyActor       = errors.New("audit: actor identity must not be empty")
)

// Recorder appends audit records. Records are written in the caller's
// transaction so that they commit or roll back with the change they
// describe.
type Recorder struct {
	db     *database.Database
	logger *slog.Logger
	now    func() time.Time
}

func NewRecorder(db *database.Database, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Recorder{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func (r *Recorder) Record(
	txn *database.Txn,
	documentID string,
	actor string,
	action models.AuditAction,
	detail string,
) (*models.AuditEntry, error) {
	if actor == "" {
		return nil, ErrEmptyActor
	}
	mdTxn := metadataTxn(txn)
	if _, err := r.db.Metadata().GetDocument(documentID, false, mdTxn); err != nil {
		if errors.Is(err, types.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate audit id: %w", err)
	}
	entry := &models.AuditEntry{
		CreatedAt:     r.now().UTC(),
		ID:            id.String(),
		DocumentID:    documentID,
		ActorIdentity: actor,
		Action:        action,
		Detail:        detail,
	}
	if err := r.db.Metadata().AddAuditEntry(entry, mdTxn); err != nil {
		return nil, fmt.Errorf("record audit entry: %w", err)
	}
	r.logger.Debug(
		"audit entry recorded",
		"component", "audit",
		"document", documentID,
		"actor", actor,
		"action", string(action),
	)
	return entry, nil
}

// Trail returns the audit records of a document, oldest first
func (r *Recorder) Trail(
	documentID string,
	txn *database.Txn,
) ([]models.AuditEntry, error) {
	return r.db.Metadata().GetAuditEntries(documentID, metadataTxn(txn))
}

func metadataTxn(txn *database.Txn) types.Txn {
	if txn == nil {
		return nil
	}
	return txn.Metadata()
}
