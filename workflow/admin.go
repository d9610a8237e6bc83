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

package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blinklabs-io/endorse/auth"
	"github.com/blinklabs-io/endorse/database"
	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/event"
)

// Cancel halts the workflow of a document that has not reached a terminal
// status. Only the document owner may cancel; administrators recover
// documents through ForceStatus. The ledger is left as is.
func (c *Controller) Cancel(
	ctx context.Context,
	documentID string,
	actor string,
) (doc *models.Document, err error) {
	start := time.Now()
	defer func() {
		c.observe("cancel", start, err)
	}()
	err = c.mutate(documentID, func(txn *database.Txn) ([]event.Event, error) {
		doc, err = c.loadDocument(documentID, true, txn)
		if err != nil {
			return nil, err
		}
		entries, err := c.ledger.Entries(doc.ID, txn)
		if err != nil {
			return nil, err
		}
		err = c.requireAny(
			ctx,
			actor,
			resourceFor(doc, entries),
			auth.CapabilityDocumentOwner,
		)
		if err != nil {
			return nil, err
		}
		expected := doc.Status
		if doc.Status, err = nextStatus(doc.Status, statusEventCancel); err != nil {
			return nil, err
		}
		setNextSigner(doc, nil)
		if err := c.updateDocument(doc, expected, txn); err != nil {
			return nil, err
		}
		detail := "workflow cancelled from " + string(expected)
		if _, err := c.audit.Record(txn, doc.ID, actor, models.AuditActionCancelled, detail); err != nil {
			return nil, err
		}
		return []event.Event{
			documentEvent(event.DocumentCancelledEventType, doc, actor, "", detail),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info(
		"document cancelled",
		"component", "workflow",
		"document", documentID,
		"actor", actor,
	)
	return doc, nil
}

// ForceStatusRequest describes an administrative override. Status and
// EntryID may be set independently; at least one is required.
type ForceStatusRequest struct {
	DocumentID  string
	Actor       string
	Status      models.DocumentStatus
	EntryID     string
	EntryStatus models.EntryStatus
	Reason      string
}

func (r ForceStatusRequest) validate() error {
	if r.Status == "" && r.EntryID == "" {
		return fmt.Errorf("%w: nothing to change", ErrInvalidRequest)
	}
	if r.Status != "" && !r.Status.Valid() {
		return fmt.Errorf("%w: unknown document status %q", ErrInvalidRequest, r.Status)
	}
	if r.EntryID != "" && !r.EntryStatus.Valid() {
		return fmt.Errorf("%w: unknown entry status %q", ErrInvalidRequest, r.EntryStatus)
	}
	return nil
}

// ForceStatus lets an administrator set document and entry statuses outside
// the normal transitions. The next signer is derived again afterwards.
func (c *Controller) ForceStatus(
	ctx context.Context,
	req ForceStatusRequest,
) (doc *models.Document, err error) {
	start := time.Now()
	defer func() {
		c.observe("force_status", start, err)
	}()
	if err := req.validate(); err != nil {
		return nil, err
	}
	err = c.mutate(req.DocumentID, func(txn *database.Txn) ([]event.Event, error) {
		doc, err = c.loadDocument(req.DocumentID, true, txn)
		if err != nil {
			return nil, err
		}
		entries, err := c.ledger.Entries(doc.ID, txn)
		if err != nil {
			return nil, err
		}
		err = c.requireAny(ctx, req.Actor, resourceFor(doc, entries), auth.CapabilityAdministrator)
		if err != nil {
			return nil, err
		}
		var changes []string
		var entryID string
		if req.EntryID != "" {
			if !containsEntry(entries, req.EntryID) {
				return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, req.EntryID)
			}
			entry, previous, err := c.ledger.ForceStatus(req.EntryID, req.EntryStatus, txn)
			if err != nil {
				return nil, err
			}
			entryID = entry.ID
			changes = append(changes, fmt.Sprintf(
				"entry %d %s -> %s",
				entry.OrderIndex,
				previous,
				entry.Status,
			))
		}
		expected := doc.Status
		if req.Status != "" {
			doc.Status = req.Status
			changes = append(changes, fmt.Sprintf("document %s -> %s", expected, doc.Status))
		}
		current, err := c.ledger.CurrentEntry(doc.ID, txn)
		if err != nil {
			return nil, err
		}
		if doc.Status.Terminal() {
			current = nil
		}
		setNextSigner(doc, current)
		if err := c.updateDocument(doc, expected, txn); err != nil {
			return nil, err
		}
		detail := strings.Join(changes, "; ")
		if req.Reason != "" {
			detail += ": " + req.Reason
		}
		_, err = c.audit.Record(txn, doc.ID, req.Actor, models.AuditActionStatusChanged, detail)
		if err != nil {
			return nil, err
		}
		return []event.Event{
			documentEvent(event.DocumentStatusForcedEventType, doc, req.Actor, entryID, detail),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Warn(
		"document status forced",
		"component", "workflow",
		"document", req.DocumentID,
		"actor", req.Actor,
		"status", string(doc.Status),
	)
	return doc, nil
}

func containsEntry(entries []models.SignatureEntry, entryID string) bool {
	for _, e := range entries {
		if e.ID == entryID {
			return true
		}
	}
	return false
}

// Remind records a reminder for the awaiting signer and publishes it for
// delivery
func (c *Controller) Remind(
	ctx context.Context,
	documentID string,
	actor string,
) (doc *models.Document, err error) {
	start := time.Now()
	defer func() {
		c.observe("remind", start, err)
	}()
	err = c.mutate(documentID, func(txn *database.Txn) ([]event.Event, error) {
		doc, err = c.loadDocument(documentID, false, txn)
		if err != nil {
			return nil, err
		}
		entries, err := c.ledger.Entries(doc.ID, txn)
		if err != nil {
			return nil, err
		}
		err = c.requireAny(
			ctx,
			actor,
			resourceFor(doc, entries),
			auth.CapabilityDocumentOwner,
			auth.CapabilityAdministrator,
		)
		if err != nil {
			return nil, err
		}
		if !doc.Status.Signable() {
			return nil, fmt.Errorf("%w: document is %s", ErrDocumentNotSignable, doc.Status)
		}
		current, err := c.ledger.CurrentEntry(doc.ID, txn)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, fmt.Errorf("%w: no entry is awaiting a signature", ErrInvalidState)
		}
		detail := fmt.Sprintf("reminded %s of entry %d", current.SignerIdentity, current.OrderIndex)
		if _, err := c.audit.Record(txn, doc.ID, actor, models.AuditActionReminder, detail); err != nil {
			return nil, err
		}
		return []event.Event{
			documentEvent(event.DocumentReminderEventType, doc, actor, current.ID, detail),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}
