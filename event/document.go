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

package event

import "github.com/blinklabs-io/endorse/database/models"

// Document lifecycle event types. They are published only after the
// transaction carrying the change has committed.
const (
	DocumentCreatedEventType      = EventType("document.created")
	DocumentActivatedEventType    = EventType("document.activated")
	DocumentSignedEventType       = EventType("document.signed")
	DocumentRejectedEventType     = EventType("document.rejected")
	DocumentCancelledEventType    = EventType("document.cancelled")
	DocumentStatusForcedEventType = EventType("document.status_forced")
	DocumentReminderEventType     = EventType("document.reminder")
)

// DocumentEventTypes lists every document lifecycle event type
var DocumentEventTypes = []EventType{
	DocumentCreatedEventType,
	DocumentActivatedEventType,
	DocumentSignedEventType,
	DocumentRejectedEventType,
	DocumentCancelledEventType,
	DocumentStatusForcedEventType,
	DocumentReminderEventType,
}

// DocumentEvent describes a committed change to a document
type DocumentEvent struct {
	DocumentID string
	Title      string
	Owner      string
	// Actor is the identity that performed the operation
	Actor  string
	Status models.DocumentStatus
	// NextSigner is empty when nobody is expected to act
	NextSigner string
	EntryID    string
	Detail     string
}
