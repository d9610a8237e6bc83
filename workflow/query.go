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
	"github.com/blinklabs-io/endorse/database/models"
)

// QueryPendingFor returns the documents waiting on a signature from identity
func (c *Controller) QueryPendingFor(
	ctx context.Context,
	identity string,
) (docs []models.Document, err error) {
	start := time.Now()
	defer func() {
		c.observe("query_pending", start, err)
	}()
	if identity == "" {
		return nil, fmt.Errorf("%w: identity is required", ErrInvalidRequest)
	}
	return c.db.Metadata().GetDocumentsAwaitingSigner(identity, nil)
}

// ListOwned returns the documents created by owner
func (c *Controller) ListOwned(
	ctx context.Context,
	owner string,
) ([]models.Document, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: owner identity is required", ErrInvalidRequest)
	}
	return c.db.Metadata().GetDocumentsByOwner(owner, nil)
}

// view loads a document and its ledger for a caller allowed to see them
func (c *Controller) view(
	ctx context.Context,
	documentID string,
	actor string,
) (*models.Document, []models.SignatureEntry, error) {
	doc, err := c.loadDocument(documentID, false, nil)
	if err != nil {
		return nil, nil, err
	}
	entries, err := c.ledger.Entries(doc.ID, nil)
	if err != nil {
		return nil, nil, err
	}
	err = c.requireAny(
		ctx,
		actor,
		resourceFor(doc, entries),
		auth.CapabilityDocumentOwner,
		auth.CapabilityDocumentParticipant,
		auth.CapabilityAdministrator,
	)
	if err != nil {
		return nil, nil, err
	}
	return doc, entries, nil
}

func (c *Controller) GetDocument(
	ctx context.Context,
	documentID string,
	actor string,
) (*models.Document, error) {
	doc, _, err := c.view(ctx, documentID, actor)
	return doc, err
}

// GetLedger returns the signature entries of a document in signing order
func (c *Controller) GetLedger(
	ctx context.Context,
	documentID string,
	actor string,
) ([]models.SignatureEntry, error) {
	_, entries, err := c.view(ctx, documentID, actor)
	return entries, err
}

func (c *Controller) GetAuditTrail(
	ctx context.Context,
	documentID string,
	actor string,
) ([]models.AuditEntry, error) {
	if _, _, err := c.view(ctx, documentID, actor); err != nil {
		return nil, err
	}
	return c.audit.Trail(documentID, nil)
}

// GetArtifactURL returns a download URL for the current artifact of a
// document. A zero ttl selects the controller default; ttl is capped at
// MaxURLTTL.
func (c *Controller) GetArtifactURL(
	ctx context.Context,
	documentID string,
	actor string,
	ttl time.Duration,
) (rawURL string, err error) {
	start := time.Now()
	defer func() {
		c.observe("artifact_url", start, err)
	}()
	doc, _, err := c.view(ctx, documentID, actor)
	if err != nil {
		return "", err
	}
	switch {
	case ttl <= 0:
		ttl = c.urlTTL
	case ttl > MaxURLTTL:
		ttl = MaxURLTTL
	}
	rawURL, err = c.db.ArtifactURL(ctx, doc.ArtifactRef(), ttl)
	if err != nil {
		if errors.Is(err, ErrSignedURLUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrArtifactMutationFailed, err)
	}
	return rawURL, nil
}
