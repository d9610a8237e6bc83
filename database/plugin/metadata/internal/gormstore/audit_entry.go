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
	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/database/types"
)

// AddAuditEntry appends an audit record. Audit records are never updated
// or deleted.
func (s *Store) AddAuditEntry(
	entry *models.AuditEntry,
	txn types.Txn,
) error {
	db, err := s.resolve(txn)
	if err != nil {
		return err
	}
	if result := db.Create(entry); result.Error != nil {
		return result.Error
	}
	return nil
}

// GetAuditEntries returns the audit trail for a document, oldest first
func (s *Store) GetAuditEntries(
	documentID string,
	txn types.Txn,
) ([]models.AuditEntry, error) {
	db, err := s.resolve(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.AuditEntry
	result := db.
		Where("document_id = ?", documentID).
		Order("created_at, id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
