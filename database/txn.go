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

package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blinklabs-io/endorse/database/types"
)

var ErrReadOnlyTxn = errors.New("transaction is read-only")

// Txn coordinates one metadata transaction with the artifacts written while
// it is open. Rolling back deletes those artifacts again.
type Txn struct {
	db          *Database
	metadataTxn types.Txn
	staged      []string
	lock        sync.Mutex
	finished    bool
	readWrite   bool
}

// NewTxn starts a transaction. Read-only transactions run metadata queries
// directly against the database and hold no connection.
func NewTxn(db *Database, readWrite bool) *Txn {
	t := &Txn{db: db, readWrite: readWrite}
	if readWrite {
		t.metadataTxn = db.Metadata().Transaction()
	}
	return t
}

func (t *Txn) DB() *Database {
	return t.db
}

// Metadata returns the metadata transaction handle, which is nil for
// read-only transactions
func (t *Txn) Metadata() types.Txn {
	return t.metadataTxn
}

// PutArtifact stores an artifact and stages it for removal on rollback
func (t *Txn) PutArtifact(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) error {
	if !t.readWrite {
		return ErrReadOnlyTxn
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.finished {
		return errors.New("transaction already finished")
	}
	if err := t.db.putArtifact(ctx, key, data, contentType); err != nil {
		return err
	}
	t.staged = append(t.staged, key)
	return nil
}

func (t *Txn) GetArtifact(ctx context.Context, key string) ([]byte, error) {
	return t.db.GetArtifact(ctx, key)
}

// StagedArtifacts returns the artifact keys written through this transaction
func (t *Txn) StagedArtifacts() []string {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]string(nil), t.staged...)
}

// Do executes the specified function in the context of the transaction. Any errors returned will result
// in the transaction being rolled back
func (t *Txn) Do(fn func(*Txn) error) error {
	if err := fn(t); err != nil {
		if err2 := t.Rollback(); err2 != nil {
			return fmt.Errorf(
				"rollback failed: %w: original error: %w",
				err2,
				err,
			)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (t *Txn) Commit() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.finished {
		return nil
	}
	// No need to commit for read-only, but we do want to free up resources
	if !t.readWrite {
		return t.rollback()
	}
	if t.metadataTxn == nil {
		t.finished = true
		return types.ErrNoStoreAvailable
	}
	if err := t.metadataTxn.Commit(); err != nil {
		t.finished = true
		// Metadata never referenced the staged artifacts
		cleanupErr := t.deleteStaged()
		return errors.Join(
			fmt.Errorf("metadata commit failed: %w", err),
			cleanupErr,
		)
	}
	t.staged = nil
	t.finished = true
	return nil
}

func (t *Txn) Rollback() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.rollback()
}

func (t *Txn) rollback() error {
	if t.finished {
		return nil
	}
	var errs []error
	if t.metadataTxn != nil {
		if err := t.metadataTxn.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("metadata rollback: %w", err))
		}
	}
	if err := t.deleteStaged(); err != nil {
		errs = append(errs, err)
	}
	t.finished = true
	return errors.Join(errs...)
}

// deleteStaged removes staged artifacts. It uses a fresh context so that an
// expired request context does not leave orphans behind.
func (t *Txn) deleteStaged() error {
	var errs []error
	for i := len(t.staged) - 1; i >= 0; i-- {
		key := t.staged[i]
		err := t.db.deleteArtifact(context.Background(), key)
		if err != nil && !errors.Is(err, types.ErrBlobKeyNotFound) {
			t.db.logger.Error(
				"failed to remove staged artifact",
				"component", "database",
				"key", key,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("artifact cleanup %s: %w", key, err))
		}
	}
	t.staged = nil
	return errors.Join(errs...)
}

// Release releases transaction resources. For read-only transactions, this
// releases locks and resources. For read-write transactions, this is equivalent
// to Rollback. Use this in defer statements for clean resource cleanup.
// Errors are logged but not returned, making this safe for deferred calls.
func (t *Txn) Release() {
	if err := t.Rollback(); err != nil {
		t.db.logger.Debug(
			"transaction release failed",
			"component", "database",
			"error", err,
			"read_write", t.readWrite,
		)
	}
}
