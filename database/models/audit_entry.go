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

type AuditAction string

const (
	AuditActionCreated          AuditAction = "created"
	AuditActionActivated        AuditAction = "activated"
	AuditActionSigned           AuditAction = "signed"
	AuditActionSignedOverride   AuditAction = "signed_override"
	AuditActionRejected         AuditAction = "rejected"
	AuditActionRejectedOverride AuditAction = "rejected_override"
	AuditActionStatusChanged    AuditAction = "status_changed"
	AuditActionCancelled        AuditAction = "cancelled"
	AuditActionReminder         AuditAction = "reminder"
)

// AuditEntry is an append-only record of a document transition
type AuditEntry struct {
	CreatedAt     time.Time   `gorm:"index"`
	ID            string      `gorm:"primaryKey;size:36"`
	DocumentID    string      `gorm:"size:36;index;not null"`
	ActorIdentity string      `gorm:"size:255;not null"`
	Action        AuditAction `gorm:"size:32;not null"`
	Detail        string      `gorm:"type:text"`
}

func (AuditEntry) TableName() string {
	return "audit_entry"
}
