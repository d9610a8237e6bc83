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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentStatus(t *testing.T) {
	tests := []struct {
		status   DocumentStatus
		valid    bool
		terminal bool
		signable bool
	}{
		{status: DocumentStatusDraft, valid: true},
		{status: DocumentStatusAwaitingSignature, valid: true, signable: true},
		{status: DocumentStatusInSignature, valid: true, signable: true},
		{status: DocumentStatusSigned, valid: true, terminal: true},
		{status: DocumentStatusRejected, valid: true, terminal: true},
		{status: DocumentStatusCancelled, valid: true, terminal: true},
		{status: DocumentStatus("assinado")},
	}
	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.valid, tc.status.Valid())
			assert.Equal(t, tc.terminal, tc.status.Terminal())
			assert.Equal(t, tc.signable, tc.status.Signable())
		})
	}
}

func TestDocumentArtifactRef(t *testing.T) {
	doc := &Document{SourceArtifactRef: "documents/1/source/a.pdf"}
	assert.Equal(t, "documents/1/source/a.pdf", doc.ArtifactRef())
	doc.CurrentArtifactRef = "documents/1/entries/2/b.pdf"
	assert.Equal(t, "documents/1/entries/2/b.pdf", doc.ArtifactRef())
}

func TestDocumentNextSigner(t *testing.T) {
	doc := &Document{}
	assert.Empty(t, doc.NextSigner())
	signer := "alice"
	doc.NextSignerIdentity = &signer
	assert.Equal(t, "alice", doc.NextSigner())
}

func TestEntryStatusValid(t *testing.T) {
	assert.True(t, EntryStatusPending.Valid())
	assert.True(t, EntryStatusAwaiting.Valid())
	assert.True(t, EntryStatusSigned.Valid())
	assert.True(t, EntryStatusRejected.Valid())
	assert.False(t, EntryStatus("").Valid())
}
