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

package models

import "time"

type EntryStatus string

const (
	EntryStatusPending  EntryStatus = "pending"
	EntryStatusAwaiting EntryStatus = "awaiting"
	EntryStatusSigned   EntryStatus = "signed"
	EntryStatusRejected EntryStatus = "rejected"
)

func (s EntryStatus) Valid() bool {
	switch s {
	case EntryStatusPending,
		EntryStatusAwaiting,
		EntryStatusSigned,
		EntryStatusRejected:
		return true
	}
	return false
}

// SignatureEntry is one signer's slot in a document ledger. Entries are
// ordered by OrderIndex, starting at 1.
type SignatureEntry struct {
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SignedArtifactRef *string `gorm:"size:512"`
	SignedAt          *time.Time
	ID                string      `gorm:"primaryKey;size:36"`
	DocumentID        string      `gorm:"size:36;not null;uniqueIndex:idx_signature_entry_document_order,priority:1"`
	SignerIdentity    string      `gorm:"size:255;index;not null"`
	Status            EntryStatus `gorm:"size:32;not null"`
	Notes             string      `gorm:"type:text"`
	RejectionReason   string      `gorm:"type:text"`
	OrderIndex        int         `gorm:"not null;uniqueIndex:idx_signature_entry_document_order,priority:2"`
}

func (SignatureEntry) TableName() string {
	return "signature_entry"
}
