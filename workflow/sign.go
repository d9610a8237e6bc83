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
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/endorse/auth"
	"github.com/blinklabs-io/endorse/database"
	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/event"
	"github.com/blinklabs-io/endorse/ledger"
)

// SignResult reports the document state after a successful signature
type SignResult struct {
	Document    *models.Document
	Entry       *models.SignatureEntry
	Status      models.DocumentStatus
	NextSigner  string
	ArtifactRef string
}

// turn is the state shared by sign and reject once the caller has been
// matched against the awaiting entry
type turn struct {
	doc      *models.Document
	entry    *models.SignatureEntry
	expected models.DocumentStatus
	events   []event.Event
	override bool
}

// resolveTurn loads the document and its awaiting entry and checks that the
// caller may act on it. A first signer acting on an untouched ledger
// activates their own entry.
func (c *Controller) resolveTurn(
	ctx context.Context,
	documentID string,
	signer string,
	txn *database.Txn,
) (*turn, error) {
	doc, err := c.loadDocument(documentID, true, txn)
	if err != nil {
		return nil, err
	}
	t := &turn{doc: doc, expected: doc.Status}
	if doc.Status.Terminal() {
		return nil, fmt.Errorf("%w: document is %s", ErrDocumentNotSignable, doc.Status)
	}
	current, err := c.ledger.CurrentEntry(doc.ID, txn)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current, err = c.bootstrap(t, signer, txn)
		if err != nil {
			return nil, err
		}
	}
	if !doc.Status.Signable() {
		return nil, fmt.Errorf("%w: document is %s", ErrDocumentNotSignable, doc.Status)
	}
	t.entry = current
	if current.SignerIdentity == signer {
		return t, nil
	}
	entries, err := c.ledger.Entries(doc.ID, txn)
	if err != nil {
		return nil, err
	}
	isAdmin, err := c.can(ctx, signer, auth.CapabilityAdministrator, resourceFor(doc, entries))
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, fmt.Errorf(
			"%w: %s is not the signer of entry %d",
			ErrNotAuthorizedSigner,
			signer,
			current.OrderIndex,
		)
	}
	t.override = true
	return t, nil
}

func (c *Controller) bootstrap(
	t *turn,
	signer string,
	txn *database.Txn,
) (*models.SignatureEntry, error) {
	entry, err := c.ledger.SelfActivate(t.doc.ID, signer, txn)
	if err != nil {
		if !errors.Is(err, ledger.ErrInvalidState) && !errors.Is(err, ledger.ErrEntryNotFound) {
			return nil, err
		}
		if !t.doc.Status.Signable() {
			return nil, fmt.Errorf("%w: document is %s", ErrDocumentNotSignable, t.doc.Status)
		}
		return nil, fmt.Errorf("%w: no entry is awaiting a signature", ErrInvalidState)
	}
	if t.doc.Status == models.DocumentStatusDraft {
		status, err := nextStatus(t.doc.Status, statusEventActivate)
		if err != nil {
			return nil, err
		}
		t.doc.Status = status
	}
	setNextSigner(t.doc, entry)
	detail := fmt.Sprintf("entry %d self-activated by its signer", entry.OrderIndex)
	if _, err := c.audit.Record(txn, t.doc.ID, signer, models.AuditActionActivated, detail); err != nil {
		return nil, err
	}
	t.events = append(
		t.events,
		documentEvent(event.DocumentActivatedEventType, t.doc, signer, entry.ID, detail),
	)
	return entry, nil
}

func validatePayload(payload Payload) error {
	switch p := payload.(type) {
	case nil:
		return nil
	case InlineImage:
		return p.validate()
	case UploadedFile:
		if len(p.Data) == 0 {
			return fmt.Errorf("%w: empty uploaded file", ErrInvalidRequest)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown payload %T", ErrInvalidRequest, payload)
}

// Sign records the signature of the current signer, advances the ledger and
// derives the new document status
func (c *Controller) Sign(
	ctx context.Context,
	documentID string,
	signer string,
	payload Payload,
	notes string,
) (res *SignResult, err error) {
	start := time.Now()
	defer func() {
		c.observe("sign", start, err)
	}()
	if signer == "" {
		return nil, fmt.Errorf("%w: signer identity is required", ErrInvalidRequest)
	}
	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	err = c.mutate(documentID, func(txn *database.Txn) ([]event.Event, error) {
		t, err := c.resolveTurn(ctx, documentID, signer, txn)
		if err != nil {
			return nil, err
		}
		doc := t.doc
		var artifactRef string
		switch p := payload.(type) {
		case InlineImage:
			out, err := c.annotate(ctx, doc, p)
			if err != nil {
				return nil, err
			}
			artifactRef = database.EntryArtifactKey(doc.ID, t.entry.ID, "pdf")
			if err := c.putArtifact(ctx, txn, artifactRef, out, "application/pdf"); err != nil {
				return nil, err
			}
			doc.CurrentArtifactRef = artifactRef
		case UploadedFile:
			artifactRef = database.EntryArtifactKey(doc.ID, t.entry.ID, p.fileExtension())
			if err := c.putArtifact(ctx, txn, artifactRef, p.Data, p.contentType()); err != nil {
				return nil, err
			}
			if isPDF(p.Data) {
				doc.CurrentArtifactRef = artifactRef
			}
		}
		entry, err := c.ledger.MarkSigned(t.entry.ID, artifactRef, notes, txn)
		if err != nil {
			return nil, err
		}
		next, err := c.ledger.ActivateNext(doc.ID, txn)
		if err != nil {
			return nil, err
		}
		statusEvent := statusEventComplete
		if next != nil {
			statusEvent = statusEventAdvance
		}
		if doc.Status, err = nextStatus(doc.Status, statusEvent); err != nil {
			return nil, err
		}
		setNextSigner(doc, next)
		if err := c.updateDocument(doc, t.expected, txn); err != nil {
			return nil, err
		}
		action := models.AuditActionSigned
		detail := fmt.Sprintf("entry %d signed", entry.OrderIndex)
		if t.override {
			action = models.AuditActionSignedOverride
			detail += " by administrator on behalf of " + entry.SignerIdentity
		}
		if notes != "" {
			detail += ": " + notes
		}
		if _, err := c.audit.Record(txn, doc.ID, signer, action, detail); err != nil {
			return nil, err
		}
		res = &SignResult{
			Document:    doc,
			Entry:       entry,
			Status:      doc.Status,
			NextSigner:  doc.NextSigner(),
			ArtifactRef: artifactRef,
		}
		return append(
			t.events,
			documentEvent(event.DocumentSignedEventType, doc, signer, entry.ID, detail),
		), nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info(
		"document signed",
		"component", "workflow",
		"document", documentID,
		"signer", signer,
		"order", res.Entry.OrderIndex,
		"status", string(res.Status),
		"next_signer", res.NextSigner,
	)
	return res, nil
}

// Reject records a refusal by the current signer. The workflow halts and the
// remaining entries stay pending.
func (c *Controller) Reject(
	ctx context.Context,
	documentID string,
	signer string,
	reason string,
) (doc *models.Document, err error) {
	start := time.Now()
	defer func() {
		c.observe("reject", start, err)
	}()
	if signer == "" {
		return nil, fmt.Errorf("%w: signer identity is required", ErrInvalidRequest)
	}
	err = c.mutate(documentID, func(txn *database.Txn) ([]event.Event, error) {
		t, err := c.resolveTurn(ctx, documentID, signer, txn)
		if err != nil {
			return nil, err
		}
		doc = t.doc
		entry, err := c.ledger.MarkRejected(t.entry.ID, reason, txn)
		if err != nil {
			return nil, err
		}
		if doc.Status, err = nextStatus(doc.Status, statusEventReject); err != nil {
			return nil, err
		}
		setNextSigner(doc, nil)
		if err := c.updateDocument(doc, t.expected, txn); err != nil {
			return nil, err
		}
		action := models.AuditActionRejected
		detail := fmt.Sprintf("entry %d rejected", entry.OrderIndex)
		if t.override {
			action = models.AuditActionRejectedOverride
			detail += " by administrator on behalf of " + entry.SignerIdentity
		}
		if reason != "" {
			detail += ": " + reason
		}
		if _, err := c.audit.Record(txn, doc.ID, signer, action, detail); err != nil {
			return nil, err
		}
		return append(
			t.events,
			documentEvent(event.DocumentRejectedEventType, doc, signer, entry.ID, detail),
		), nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info(
		"document rejected",
		"component", "workflow",
		"document", documentID,
		"signer", signer,
	)
	return doc, nil
}
