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

// Package workflow drives documents through sequential multi-party signing.
// Every operation runs under a per-document lock inside one database
// transaction, so ledger, document status, audit trail and artifacts change
// together or not at all.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/endorse/annotator"
	"github.com/blinklabs-io/endorse/audit"
	"github.com/blinklabs-io/endorse/auth"
	"github.com/blinklabs-io/endorse/database"
	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/database/types"
	"github.com/blinklabs-io/endorse/event"
	"github.com/blinklabs-io/endorse/ledger"
)

const (
	DefaultURLTTL = 15 * time.Minute
	MaxURLTTL     = 7 * 24 * time.Hour
)

type Controller struct {
	db           *database.Database
	ledger       *ledger.Ledger
	audit        *audit.Recorder
	annotator    *annotator.Annotator
	authorizer   auth.Authorizer
	eventBus     *event.EventBus
	logger       *slog.Logger
	promRegistry prometheus.Registerer
	metrics      *workflowMetrics
	locks        *documentLocks
	urlTTL       time.Duration
}

type ControllerOption func(*Controller)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithAuthorizer sets the capability checker. The default grants the
// administrator capability to nobody.
func WithAuthorizer(authorizer auth.Authorizer) ControllerOption {
	return func(c *Controller) {
		c.authorizer = authorizer
	}
}

// WithEventBus publishes document events on the given bus after commit
func WithEventBus(eventBus *event.EventBus) ControllerOption {
	return func(c *Controller) {
		c.eventBus = eventBus
	}
}

func WithAnnotator(a *annotator.Annotator) ControllerOption {
	return func(c *Controller) {
		c.annotator = a
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(
	registry prometheus.Registerer,
) ControllerOption {
	return func(c *Controller) {
		c.promRegistry = registry
	}
}

// WithURLTTL sets the default lifetime of artifact download URLs
func WithURLTTL(ttl time.Duration) ControllerOption {
	return func(c *Controller) {
		c.urlTTL = ttl
	}
}

func NewController(
	db *database.Database,
	opts ...ControllerOption,
) (*Controller, error) {
	if db == nil {
		return nil, errors.New("workflow: database is required")
	}
	c := &Controller{
		db:     db,
		locks:  newDocumentLocks(),
		urlTTL: DefaultURLTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if c.authorizer == nil {
		c.authorizer = auth.NewStaticAuthorizer(nil)
	}
	if c.annotator == nil {
		c.annotator = annotator.New(annotator.WithLogger(c.logger))
	}
	c.ledger = ledger.New(db)
	c.audit = audit.NewRecorder(db, c.logger)
	c.initMetrics(c.promRegistry)
	return c, nil
}

// mutate runs fn under the document lock inside a read-write transaction.
// Events returned by fn are published once the transaction has committed.
func (c *Controller) mutate(
	documentID string,
	fn func(*database.Txn) ([]event.Event, error),
) error {
	unlock := c.locks.lock(documentID)
	defer unlock()
	var events []event.Event
	var staged int
	err := c.db.Transaction(true).Do(func(txn *database.Txn) error {
		var err error
		events, err = fn(txn)
		staged = len(txn.StagedArtifacts())
		return err
	})
	if err != nil {
		return err
	}
	c.metrics.artifacts.Add(float64(staged))
	c.publish(events...)
	return nil
}

func (c *Controller) publish(events ...event.Event) {
	if c.eventBus == nil {
		return
	}
	for _, evt := range events {
		if !c.eventBus.PublishAsync(evt.Type, evt) {
			c.logger.Warn(
				"document event dropped",
				"component", "workflow",
				"type", string(evt.Type),
			)
		}
	}
}

func documentEvent(
	eventType event.EventType,
	doc *models.Document,
	actor string,
	entryID string,
	detail string,
) event.Event {
	return event.NewEvent(eventType, event.DocumentEvent{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Owner:      doc.OwnerIdentity,
		Actor:      actor,
		Status:     doc.Status,
		NextSigner: doc.NextSigner(),
		EntryID:    entryID,
		Detail:     detail,
	})
}

func (c *Controller) loadDocument(
	documentID string,
	forUpdate bool,
	txn *database.Txn,
) (*models.Document, error) {
	var mdTxn types.Txn
	if txn != nil {
		mdTxn = txn.Metadata()
	}
	doc, err := c.db.Metadata().GetDocument(documentID, forUpdate, mdTxn)
	if err != nil {
		if errors.Is(err, types.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		return nil, err
	}
	return doc, nil
}

func resourceFor(
	doc *models.Document,
	entries []models.SignatureEntry,
) auth.Resource {
	res := auth.Resource{
		DocumentID:    doc.ID,
		OwnerIdentity: doc.OwnerIdentity,
		Participants:  make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		res.Participants = append(res.Participants, e.SignerIdentity)
	}
	return res
}

func (c *Controller) can(
	ctx context.Context,
	identity string,
	capability auth.Capability,
	res auth.Resource,
) (bool, error) {
	ok, err := c.authorizer.Can(ctx, identity, capability, res)
	if err != nil {
		return false, fmt.Errorf("authorization check: %w", err)
	}
	return ok, nil
}

// requireAny succeeds when identity holds at least one of the capabilities
func (c *Controller) requireAny(
	ctx context.Context,
	identity string,
	res auth.Resource,
	capabilities ...auth.Capability,
) error {
	for _, capability := range capabilities {
		ok, err := c.can(ctx, identity, capability, res)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s on document %s", ErrNotAuthorized, identity, res.DocumentID)
}

// setNextSigner points the document at the awaiting entry, or clears it
func setNextSigner(doc *models.Document, entry *models.SignatureEntry) {
	if entry == nil {
		doc.NextSignerIdentity = nil
		doc.NextSignerEntryID = nil
		return
	}
	signer, id := entry.SignerIdentity, entry.ID
	doc.NextSignerIdentity = &signer
	doc.NextSignerEntryID = &id
}

func (c *Controller) updateDocument(
	doc *models.Document,
	expected models.DocumentStatus,
	txn *database.Txn,
) error {
	err := c.db.Metadata().UpdateDocument(doc, expected, txn.Metadata())
	switch {
	case errors.Is(err, types.ErrStatusConflict):
		return fmt.Errorf("%w: document status changed", ErrInvalidState)
	case errors.Is(err, types.ErrRecordNotFound):
		return ErrDocumentNotFound
	}
	return err
}

// putArtifact stages an artifact in the transaction. Storage failures
// surface as ErrArtifactMutationFailed.
func (c *Controller) putArtifact(
	ctx context.Context,
	txn *database.Txn,
	key string,
	data []byte,
	contentType string,
) error {
	if err := txn.PutArtifact(ctx, key, data, contentType); err != nil {
		return fmt.Errorf("%w: %w", ErrArtifactMutationFailed, err)
	}
	return nil
}

// annotate composites an inline signature onto the current artifact within
// the artifact deadline
func (c *Controller) annotate(
	ctx context.Context,
	doc *models.Document,
	img InlineImage,
) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.db.ArtifactTimeout())
	defer cancel()
	source, err := c.db.GetArtifact(ctx, doc.ArtifactRef())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactMutationFailed, err)
	}
	type result struct {
		err error
		out []byte
	}
	done := make(chan result, 1)
	go func() {
		out, err := img.annotate(c.annotator, source)
		done <- result{out: out, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: annotation: %w", ErrArtifactMutationFailed, ctx.Err())
	case res := <-done:
		if res.err == nil {
			return res.out, nil
		}
		if errors.Is(res.err, ErrUnsupportedImageFormat) ||
			errors.Is(res.err, ErrPageIndexOutOfRange) {
			return nil, res.err
		}
		return nil, fmt.Errorf("%w: %w", ErrArtifactMutationFailed, res.err)
	}
}
