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
)

// GetSignatureEntries returns the ledger for a document ordered by order index
func (s *Store) GetSignatureEntries(
	documentID string,
	txn types.Txn,
) ([]models.SignatureEntry, error) {
	db, err := s.resolve(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.SignatureEntry
	result := db.
		Where("document_id = ?", documentID).
		Order("order_index").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetSignatureEntry returns a single ledger entry by ID
func (s *Store) GetSignatureEntry(
	id string,
	txn types.Txn,
) (*models.SignatureEntry, error) {
	db, err := s.resolve(txn)
	if err != nil {
		return nil, err
	}
	ret := &models.SignatureEntry{}
	if result := db.Where("id = ?", id).First(ret); result.Error != nil {
		return nil, translateError(result.Error)
	}
	return ret, nil
}

// UpdateSignatureEntry writes the mutable entry fields if the stored status
// still equals expected. It returns types.ErrStatusConflict otherwise.
func (s *Store) UpdateSignatureEntry(
	entry *models.SignatureEntry,
	expected models.EntryStatus,
	txn types.Txn,
) error {
	db, err := s.resolve(txn)
	if err != nil {
		return err
	}
	entry.UpdatedAt = time.Now()
	result := db.Model(&models.SignatureEntry{}).
		Where("id = ? AND status = ?", entry.ID, expected).
		Updates(map[string]any{
			"status":              entry.Status,
			"signed_artifact_ref": entry.SignedArtifactRef,
			"signed_at":           entry.SignedAt,
			"notes":               entry.Notes,
			"rejection_reason":    entry.RejectionReason,
			"updated_at":          entry.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return s.conflictOrMissing(db, &models.SignatureEntry{}, entry.ID)
	}
	return nil
}
