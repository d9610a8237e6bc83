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

package metadata

import (
	"fmt"

	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/database/plugin"
	"github.com/blinklabs-io/endorse/database/types"
	"gorm.io/gorm"

	// Register metadata plugins
	_ "github.com/blinklabs-io/endorse/database/plugin/metadata/mysql"
	_ "github.com/blinklabs-io/endorse/database/plugin/metadata/postgres"
	_ "github.com/blinklabs-io/endorse/database/plugin/metadata/sqlite"
)

// MetadataStore persists documents, their signature ledgers and audit trails.
// Every method accepts an optional transaction from Transaction/BeginTxn;
// a nil transaction runs against the database directly.
type MetadataStore interface {
	// Database
	Close() error
	DB() *gorm.DB
	Transaction() types.Txn
	BeginTxn() (types.Txn, error)

	// Documents
	CreateDocument(
		*models.Document,
		[]models.SignatureEntry,
		types.Txn,
	) error
	GetDocument(
		string, // id
		bool, // forUpdate
		types.Txn,
	) (*models.Document, error)
	GetDocumentsAwaitingSigner(
		string, // signer identity
		types.Txn,
	) ([]models.Document, error)
	GetDocumentsByOwner(
		string, // owner identity
		types.Txn,
	) ([]models.Document, error)
	UpdateDocument(
		*models.Document,
		models.DocumentStatus, // expected current status
		types.Txn,
	) error

	// Ledger
	GetSignatureEntries(
		string, // document id
		types.Txn,
	) ([]models.SignatureEntry, error)
	GetSignatureEntry(
		string, // entry id
		types.Txn,
	) (*models.SignatureEntry, error)
	UpdateSignatureEntry(
		*models.SignatureEntry,
		models.EntryStatus, // expected current status
		types.Txn,
	) error

	// Audit
	AddAuditEntry(*models.AuditEntry, types.Txn) error
	GetAuditEntries(
		string, // document id
		types.Txn,
	) ([]models.AuditEntry, error)
}

// New returns the started metadata plugin selected by name
func New(pluginName string) (MetadataStore, error) {
	p, err := plugin.StartPlugin(plugin.PluginTypeMetadata, pluginName)
	if err != nil {
		return nil, err
	}
	metadataStore, ok := p.(MetadataStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement MetadataStore interface",
			pluginName,
		)
	}
	return metadataStore, nil
}
