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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/endorse/database/models"
)

func TestDocumentLocksSerializeAndRelease(t *testing.T) {
	locks := newDocumentLocks()
	unlock := locks.lock("a")
	assert.Equal(t, 1, locks.len())

	acquired := make(chan struct{})
	go func() {
		release := locks.lock("a")
		close(acquired)
		release()
	}()
	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}
	// Other documents are not blocked
	locks.lock("b")()

	unlock()
	<-acquired
	require.Eventually(t, func() bool {
		return locks.len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestDocumentLocksConcurrent(t *testing.T) {
	locks := newDocumentLocks()
	var wg sync.WaitGroup
	var counter int
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("doc")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.len())
}

func TestNextStatus(t *testing.T) {
	tests := []struct {
		current models.DocumentStatus
		event   string
		want    models.DocumentStatus
		wantErr bool
	}{
		{models.DocumentStatusDraft, statusEventActivate, models.DocumentStatusAwaitingSignature, false},
		{models.DocumentStatusAwaitingSignature, statusEventAdvance, models.DocumentStatusInSignature, false},
		{models.DocumentStatusInSignature, statusEventAdvance, models.DocumentStatusInSignature, false},
		{models.DocumentStatusAwaitingSignature, statusEventComplete, models.DocumentStatusSigned, false},
		{models.DocumentStatusInSignature, statusEventReject, models.DocumentStatusRejected, false},
		{models.DocumentStatusDraft, statusEventCancel, models.DocumentStatusRejected, false},
		{models.DocumentStatusDraft, statusEventAdvance, "", true},
		{models.DocumentStatusSigned, statusEventCancel, "", true},
		{models.DocumentStatusRejected, statusEventReject, "", true},
		{models.DocumentStatusCancelled, statusEventComplete, "", true},
	}
	for _, test := range tests {
		got, err := nextStatus(test.current, test.event)
		if test.wantErr {
			assert.ErrorIs(t, err, ErrDocumentNotSignable, "%s/%s", test.current, test.event)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, test.want, got)
	}
}

func TestUploadedFileExtension(t *testing.T) {
	tests := []struct {
		file UploadedFile
		ext  string
		ct   string
	}{
		{UploadedFile{Data: []byte("%PDF-1.4"), ContentType: "image/png"}, "pdf", "application/pdf"},
		{UploadedFile{Data: []byte{0x89}, ContentType: "image/png"}, "png", "image/png"},
		{UploadedFile{Data: []byte{0xff}, ContentType: "image/jpeg; q=1"}, "jpg", "image/jpeg; q=1"},
		{UploadedFile{Data: []byte("x")}, "bin", "application/octet-stream"},
	}
	for _, test := range tests {
		assert.Equal(t, test.ext, test.file.fileExtension())
		assert.Equal(t, test.ct, test.file.contentType())
	}
}
