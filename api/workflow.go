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

package api

import (
	"context"
	"time"

	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/workflow"
)

// Workflow is the set of operations the API server calls. It is satisfied by
// *workflow.Controller.
type Workflow interface {
	CreateDocument(context.Context, workflow.CreateDocumentRequest) (*models.Document, error)
	ActivateNext(ctx context.Context, documentID string, actor string) (*models.Document, error)
	Sign(
		ctx context.Context,
		documentID string,
		signer string,
		payload workflow.Payload,
		notes string,
	) (*workflow.SignResult, error)
	Reject(ctx context.Context, documentID string, signer string, reason string) (*models.Document, error)
	Cancel(ctx context.Context, documentID string, actor string) (*models.Document, error)
	Remind(ctx context.Context, documentID string, actor string) (*models.Document, error)
	ForceStatus(context.Context, workflow.ForceStatusRequest) (*models.Document, error)

	QueryPendingFor(ctx context.Context, identity string) ([]models.Document, error)
	ListOwned(ctx context.Context, owner string) ([]models.Document, error)
	GetDocument(ctx context.Context, documentID string, actor string) (*models.Document, error)
	GetLedger(ctx context.Context, documentID string, actor string) ([]models.SignatureEntry, error)
	GetAuditTrail(ctx context.Context, documentID string, actor string) ([]models.AuditEntry, error)
	GetArtifactURL(
		ctx context.Context,
		documentID string,
		actor string,
		ttl time.Duration,
	) (string, error)
}

var _ Workflow = (*workflow.Controller)(nil)
