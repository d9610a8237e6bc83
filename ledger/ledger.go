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

// Package ledger maintains the ordered signer entries of a document and
// guarantees that at most one of them awaits a signature at any time.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/blinklabs-io/endorse/database"
	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/database/types"
	"github.com/google/uuid"
)

var (
	ErrEntryNotFound = errors.New("signature entry not found")
	// ErrInvalidState means the entry was not in the status the transition
	// requires, usually because a concurrent transition won
	ErrInvalidState = errors.New("signature entry is not in the required state")
	ErrNoSigners    = errors.New("a ledger needs at least one signer")
	ErrEmptySigner  = errors.New("signer identity must not be empty")
)

type Ledger struct {
	db  *database.Database
	now func() time.Time
}

func New(db *database.Database) *Ledger {
	return &Ledger{
		db:  db,
		now: time.Now,
	}
}

// NewEntries builds the pending ledger for a new document. Signing order
// follows the order of signers, starting at index 1.
func NewEntries(
	documentID string,
	signers []string,
) ([]models.SignatureEntry, error) {
	if len(signers) == 0 {
		return nil, ErrNoSigners
	}
	ret := make([]models.SignatureEntry, 0, len(signers))
	for i, signer := range signers {
		signer = strings.TrimSpace(signer)
		if signer == "" {
			return nil, fmt.Errorf("signer %d: %w", i+1, ErrEmptySigner)
		}
		ret = append(ret, models.SignatureEntry{
			ID:             uuid.NewString(),
			DocumentID:     documentID,
			SignerIdentity: signer,
			OrderIndex:     i + 1,
			Status:         models.EntryStatusPending,
		})
	}
	return ret, nil
}

// Entries returns the ledger of a document ordered by order index
func (l *Ledger) Entries(
	documentID string,
	txn *database.Txn,
) ([]models.SignatureEntry, error) {
	return l.db.Metadata().GetSignatureEntries(documentID, metadataTxn(txn))
}

// Entry returns one ledger entry
func (l *Ledger) Entry(
	entryID string,
	txn *database.Txn,
) (*models.SignatureEntry, error) {
	entry, err := l.db.Metadata().GetSignatureEntry(entryID, metadataTxn(txn))
	if err != nil {
		return nil, translate(err)
	}
	return entry, nil
}

// CurrentEntry returns the awaiting entry of a document, or nil when no
// signer is currently expected to act
func (l *Ledger) CurrentEntry(
	documentID string,
	txn *database.Txn,
) (*models.SignatureEntry, error) {
	entries, err := l.Entries(documentID, txn)
	if err != nil {
		return nil, err
	}
	return currentEntry(entries)
}

func currentEntry(entries []models.SignatureEntry) (*models.SignatureEntry, error) {
	var ret *models.SignatureEntry
	for i := range entries {
		if entries[i].Status != models.EntryStatusAwaiting {
			continue
		}
		if ret != nil {
			return nil, fmt.Errorf(
				"%w: entries %d and %d are both awaiting",
				ErrInvalidState,
				ret.OrderIndex,
				entries[i].OrderIndex,
			)
		}
		ret = &entries[i]
	}
	return ret, nil
}

// MarkSigned moves an awaiting entry to signed
func (l *Ledger) MarkSigned(
	entryID string,
	artifactRef string,
	notes string,
	txn *database.Txn,
) (*models.SignatureEntry, error) {
	entry, err := l.Entry(entryID, txn)
	if err != nil {
		return nil, err
	}
	if entry.Status != models.EntryStatusAwaiting {
		return nil, fmt.Errorf(
			"%w: entry %d is %s, not awaiting",
			ErrInvalidState,
			entry.OrderIndex,
			entry.Status,
		)
	}
	signedAt := l.now().UTC()
	entry.Status = models.EntryStatusSigned
	entry.SignedAt = &signedAt
	entry.Notes = notes
	if artifactRef != "" {
		entry.SignedArtifactRef = &artifactRef
	}
	if err := l.update(entry, models.EntryStatusAwaiting, txn); err != nil {
		return nil, err
	}
	return entry, nil
}

// MarkRejected moves an awaiting entry to rejected. Other entries are left
// untouched and the ledger is frozen from then on.
func (l *Ledger) MarkRejected(
	entryID string,
	reason string,
	txn *database.Txn,
) (*models.SignatureEntry, error) {
	entry, err := l.Entry(entryID, txn)
	if err != nil {
		return nil, err
	}
	if entry.Status != models.EntryStatusAwaiting {
		return nil, fmt.Errorf(
			"%w: entry %d is %s, not awaiting",
			ErrInvalidState,
			entry.OrderIndex,
			entry.Status,
		)
	}
	entry.Status = models.EntryStatusRejected
	entry.RejectionReason = reason
	if err := l.update(entry, models.EntryStatusAwaiting, txn); err != nil {
		return nil, err
	}
	return entry, nil
}

// ActivateNext moves the lowest pending entry to awaiting. It returns nil
// when no pending entry remains. It refuses to run while another entry is
// awaiting or after any entry was rejected.
func (l *Ledger) ActivateNext(
	documentID string,
	txn *database.Txn,
) (*models.SignatureEntry, error) {
	entries, err := l.Entries(documentID, txn)
	if err != nil {
		return nil, err
	}
	var next *models.SignatureEntry
	for i := range entries {
		switch entries[i].Status {
		case models.EntryStatusAwaiting:
			return nil, fmt.Errorf(
				"%w: entry %d is already awaiting",
				ErrInvalidState,
				entries[i].OrderIndex,
			)
		case models.EntryStatusRejected:
			return nil, fmt.Errorf(
				"%w: entry %d was rejected",
				ErrInvalidState,
				entries[i].OrderIndex,
			)
		case models.EntryStatusPending:
			if next == nil {
				next = &entries[i]
			}
		}
	}
	if next == nil {
		return nil, nil
	}
	next.Status = models.EntryStatusAwaiting
	if err := l.update(next, models.EntryStatusPending, txn); err != nil {
		return nil, err
	}
	return next, nil
}

// SelfActivate moves the first entry of a ledger from pending to awaiting on
// behalf of its own signer. This covers documents whose workflow was never
// started. It only applies while no entry has left the pending state.
func (l *Ledger) SelfActivate(
	documentID string,
	signerIdentity string,
	txn *database.Txn,
) (*models.SignatureEntry, error) {
	entries, err := l.Entries(documentID, txn)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEntryNotFound
	}
	first := &entries[0]
	if first.OrderIndex != 1 || first.SignerIdentity != signerIdentity {
		return nil, fmt.Errorf(
			"%w: only the first signer may self-activate",
			ErrInvalidState,
		)
	}
	untouched := !slices.ContainsFunc(entries, func(e models.SignatureEntry) bool {
		return e.Status != models.EntryStatusPending
	})
	if !untouched {
		return nil, fmt.Errorf(
			"%w: ledger has already started",
			ErrInvalidState,
		)
	}
	first.Status = models.EntryStatusAwaiting
	if err := l.update(first, models.EntryStatusPending, txn); err != nil {
		return nil, err
	}
	return first, nil
}

// ForceStatus sets an entry status regardless of signing order. It still
// refuses to create a second awaiting entry.
func (l *Ledger) ForceStatus(
	entryID string,
	status models.EntryStatus,
	txn *database.Txn,
) (*models.SignatureEntry, models.EntryStatus, error) {
	if !status.Valid() {
		return nil, "", fmt.Errorf("%w: unknown entry status %q", ErrInvalidState, status)
	}
	entry, err := l.Entry(entryID, txn)
	if err != nil {
		return nil, "", err
	}
	previous := entry.Status
	if status == models.EntryStatusAwaiting && previous != models.EntryStatusAwaiting {
		current, err := l.CurrentEntry(entry.DocumentID, txn)
		if err != nil {
			return nil, "", err
		}
		if current != nil {
			return nil, "", fmt.Errorf(
				"%w: entry %d is already awaiting",
				ErrInvalidState,
				current.OrderIndex,
			)
		}
	}
	entry.Status = status
	switch status {
	case models.EntryStatusSigned:
		if entry.SignedAt == nil {
			signedAt := l.now().UTC()
			entry.SignedAt = &signedAt
		}
	case models.EntryStatusPending, models.EntryStatusAwaiting:
		entry.SignedAt = nil
		entry.RejectionReason = ""
	}
	if err := l.update(entry, previous, txn); err != nil {
		return nil, "", err
	}
	return entry, previous, nil
}

func (l *Ledger) update(
	entry *models.SignatureEntry,
	expected models.EntryStatus,
	txn *database.Txn,
) error {
	err := l.db.Metadata().UpdateSignatureEntry(entry, expected, metadataTxn(txn))
	if err != nil {
		return translate(err)
	}
	return nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, types.ErrRecordNotFound):
		return ErrEntryNotFound
	case errors.Is(err, types.ErrStatusConflict):
		return ErrInvalidState
	}
	return err
}

func metadataTxn(txn *database.Txn) types.Txn {
	if txn == nil {
		return nil
	}
	return txn.Metadata()
}
