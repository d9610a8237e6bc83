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

package gormstore

import (
	"time"

	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateDocument inserts a document together with its ledger entries
func (s *Store) CreateDocument(
	doc *models.Document,
	entries []models.SignatureEntry,
	txn types.Txn,
) error {
	return s.inTxn(txn, func(db *gorm.DB) error {
		if result := db.Create(doc); result.Error != nil {
			return result.Error
		}
		if len(entries) == 0 {
			return nil
		}
		if result := db.Create(&entries); result.Error != nil {
			return result.Error
		}
		return nil
	})
}

// GetDocument returns a document by ID. With forUpdate set, dialects that
// support it take a row lock held until the transaction ends.
func (s *Store) GetDocument(
	id string,
	forUpdate bool,
	txn types.Txn,
) (*models.Document, error) {
	db, err := s.resolve(txn)
	if err != nil {
		return nil, err
	}
	if forUpdate && s.rowLocks && txn != nil {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	ret := &models.Document{}
	if result := db.Where("id = ?", id).First(ret); result.Error != nil {
		return nil, translateError(result.Error)
	}
	return ret, nil
}

// GetDocumentsAwaitingSigner returns the signable documents whose awaiting
// ledger entry belongs to identity
func (s *Store) GetDocumentsAwaitingSigner(
	identity string,
	txn types.Txn,
) ([]models.Document, error) {
	db, err := s.resolve(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.Document
	result := db.
		Joins("JOIN signature_entry ON signature_entry.document_id = document.id").
		Where(
			"signature_entry.status = ? AND signature_entry.signer_identity = ?",
			models.EntryStatusAwaiting,
			identity,
		).
		Where(
			"document.status IN ?",
			[]models.DocumentStatus{
				models.DocumentStatusAwaitingSignature,
				models.DocumentStatusInSignature,
			},
		).
		Order("document.created_at, document.id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetDocumentsByOwner returns the documents created by owner
func (s *Store) GetDocumentsByOwner(
	owner string,
	txn types.Txn,
) ([]models.Document, error) {
	db, err := s.resolve(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.Document
	result := db.
		Where("owner_identity = ?", owner).
		Order("created_at, id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// UpdateDocument writes the mutable document fields if the stored status
// still equals expected. It returns types.ErrStatusConflict otherwise.
func (s *Store) UpdateDocument(
	doc *models.Document,
	expected models.DocumentStatus,
	txn types.Txn,
) error {
	db, err := s.resolve(txn)
	if err != nil {
		return err
	}
	doc.UpdatedAt = time.Now()
	result := db.Model(&models.Document{}).
		Where("id = ? AND status = ?", doc.ID, expected).
		Updates(map[string]any{
			"status":               doc.Status,
			"next_signer_identity": doc.NextSignerIdentity,
			"next_signer_entry_id": doc.NextSignerEntryID,
			"current_artifact_ref": doc.CurrentArtifactRef,
			"updated_at":           doc.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return s.conflictOrMissing(db, &models.Document{}, doc.ID)
	}
	return nil
}

// conflictOrMissing distinguishes a lost compare-and-swap from a missing row
func (s *Store) conflictOrMissing(db *gorm.DB, model any, id string) error {
	var count int64
	if result := db.Model(model).Where("id = ?", id).Count(&count); result.Error != nil {
		return result.Error
	}
	if count == 0 {
		return types.ErrRecordNotFound
	}
	return types.ErrStatusConflict
}
