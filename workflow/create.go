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

	"github.com/google/uuid"

	"github.com/blinklabs-io/endorse/auth"
	"github.com/blinklabs-io/endorse/database"
	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/event"
	"github.com/blinklabs-io/endorse/ledger"
)

type CreateDocumentRequest struct {
	Owner   string
	Title   string
	Source  []byte
	Signers []string
	// Start activates the first signer immediately
	Start bool
}

// CreateDocument stores the source PDF and builds the pending ledger
func (c *Controller) CreateDocument(
	ctx context.Context,
	req CreateDocumentRequest,
) (doc *models.Document, err error) {
	start := time.Now()
	defer func() {
		c.observe("create", start, err)
	}()
	owner := strings.TrimSpace(req.Owner)
	title := strings.TrimSpace(req.Title)
	if owner == "" {
		return nil, fmt.Errorf("%w: owner identity is required", ErrInvalidRequest)
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	if !isPDF(req.Source) {
		return nil, fmt.Errorf("%w: source must be a PDF document", ErrInvalidRequest)
	}
	documentID := uuid.NewString()
	entries, err := ledger.NewEntries(documentID, req.Signers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	doc = &models.Document{
		ID:                documentID,
		Title:             title,
		OwnerIdentity:     owner,
		Status:            models.DocumentStatusDraft,
		SourceArtifactRef: database.SourceArtifactKey(documentID),
	}
	err = c.mutate(documentID, func(txn *database.Txn) ([]event.Event, error) {
		err := c.putArtifact(ctx, txn, doc.SourceArtifactRef, req.Source, "application/pdf")
		if err != nil {
			return nil, err
		}
		if err := c.db.Metadata().CreateDocument(doc, entries, txn.Metadata()); err != nil {
			return nil, err
		}
		detail := fmt.Sprintf("%d signers", len(entries))
		if _, err := c.audit.Record(txn, doc.ID, owner, models.AuditActionCreated, detail); err != nil {
			return nil, err
		}
		events := []event.Event{
			documentEvent(event.DocumentCreatedEventType, doc, owner, "", detail),
		}
		if !req.Start {
			return events, nil
		}
		evt, err := c.activate(doc, owner, txn)
		if err != nil {
			return nil, err
		}
		return append(events, evt), nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info(
		"document created",
		"component", "workflow",
		"document", doc.ID,
		"owner", owner,
		"signers", len(entries),
		"status", string(doc.Status),
	)
	return doc, nil
}

// ActivateNext starts the workflow of a draft document by moving its first
// entry to awaiting
func (c *Controller) ActivateNext(
	ctx context.Context,
	documentID string,
	actor string,
) (doc *models.Document, err error) {
	start := time.Now()
	defer func() {
		c.observe("activate", start, err)
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
			auth.CapabilityAdministrator,
		)
		if err != nil {
			return nil, err
		}
		if doc.Status != models.DocumentStatusDraft {
			return nil, fmt.Errorf("%w: document is already %s", ErrInvalidState, doc.Status)
		}
		evt, err := c.activate(doc, actor, txn)
		if err != nil {
			return nil, err
		}
		return []event.Event{evt}, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info(
		"document activated",
		"component", "workflow",
		"document", documentID,
		"next_signer", doc.NextSigner(),
	)
	return doc, nil
}

// activate moves a draft document to awaiting_signature
func (c *Controller) activate(
	doc *models.Document,
	actor string,
	txn *database.Txn,
) (event.Event, error) {
	next, err := c.ledger.ActivateNext(doc.ID, txn)
	if err != nil {
		return event.Event{}, err
	}
	if next == nil {
		return event.Event{}, fmt.Errorf("%w: no pending entry to activate", ErrInvalidState)
	}
	expected := doc.Status
	if doc.Status, err = nextStatus(doc.Status, statusEventActivate); err != nil {
		return event.Event{}, err
	}
	setNextSigner(doc, next)
	if err := c.updateDocument(doc, expected, txn); err != nil {
		return event.Event{}, err
	}
	detail := fmt.Sprintf("entry %d awaiting %s", next.OrderIndex, next.SignerIdentity)
	if _, err := c.audit.Record(txn, doc.ID, actor, models.AuditActionActivated, detail); err != nil {
		return event.Event{}, err
	}
	return documentEvent(event.DocumentActivatedEventType, doc, actor, next.ID, detail), nil
}
