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

type DocumentStatus string

const (
	DocumentStatusDraft             DocumentStatus = "draft"
	DocumentStatusAwaitingSignature DocumentStatus = "awaiting_signature"
	DocumentStatusInSignature       DocumentStatus = "in_signature"
	DocumentStatusSigned            DocumentStatus = "signed"
	DocumentStatusRejected          DocumentStatus = "rejected"
	DocumentStatusCancelled         DocumentStatus = "cancelled"
)

// Valid reports whether s is a known document status
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusDraft,
		DocumentStatusAwaitingSignature,
		DocumentStatusInSignature,
		DocumentStatusSigned,
		DocumentStatusRejected,
		DocumentStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further ledger transitions are permitted
func (s DocumentStatus) Terminal() bool {
	switch s {
	case DocumentStatusSigned,
		DocumentStatusRejected,
		DocumentStatusCancelled:
		return true
	}
	return false
}

// Signable reports whether a sign or reject operation may act on the document
func (s DocumentStatus) Signable() bool {
	return s == DocumentStatusAwaitingSignature ||
		s == DocumentStatusInSignature
}

// Document is a PDF moving through sequential sign-off.
type Document struct {
	CreatedAt          time.Time
	UpdatedAt          time.Time
	NextSignerIdentity *string        `gorm:"size:255;index"`
	NextSignerEntryID  *string        `gorm:"size:36"`
	ID                 string         `gorm:"primaryKey;size:36"`
	Title              string         `gorm:"size:255;not null"`
	OwnerIdentity      string         `gorm:"size:255;index;not null"`
	Status             DocumentStatus `gorm:"size:32;index;not null"`
	SourceArtifactRef  string         `gorm:"size:512;not null"`
	CurrentArtifactRef string         `gorm:"size:512"`
}

func (Document) TableName() string {
	return "document"
}

// ArtifactRef returns the latest artifact for the document
func (d *Document) ArtifactRef() string {
	if d.CurrentArtifactRef != "" {
		return d.CurrentArtifactRef
	}
	return d.SourceArtifactRef
}

// NextSigner returns the identity of the current signer, or an empty string
func (d *Document) NextSigner() string {
	if d.NextSignerIdentity == nil {
		return ""
	}
	return *d.NextSignerIdentity
}
