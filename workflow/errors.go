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
	"errors"

	"github.com/blinklabs-io/endorse/annotator"
	"github.com/blinklabs-io/endorse/database/types"
	"github.com/blinklabs-io/endorse/ledger"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrEntryNotFound       = ledger.ErrEntryNotFound
	ErrDocumentNotSignable = errors.New("document is not in a signable state")
	// ErrNotAuthorizedSigner means the caller is not the current signer and
	// holds no administrative override
	ErrNotAuthorizedSigner = errors.New("caller is not the current signer")
	// ErrInvalidState means a concurrent transition won. Retrying the whole
	// operation is safe.
	ErrInvalidState           = ledger.ErrInvalidState
	ErrUnsupportedImageFormat = annotator.ErrUnsupportedImageFormat
	ErrPageIndexOutOfRange    = annotator.ErrPageIndexOutOfRange
	// ErrArtifactMutationFailed wraps storage and annotation failures. No
	// state was committed when it is returned.
	ErrArtifactMutationFailed = errors.New("artifact mutation failed")
	ErrNotAuthorized          = errors.New("not authorized")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrSignedURLUnavailable   = types.ErrSignedURLUnavailable
)

// Machine readable error codes
const (
	CodeDocumentNotFound       = "document_not_found"
	CodeEntryNotFound          = "entry_not_found"
	CodeDocumentNotSignable    = "document_not_signable"
	CodeNotAuthorizedSigner    = "not_authorized_signer"
	CodeInvalidState           = "invalid_state"
	CodeUnsupportedImageFormat = "unsupported_image_format"
	CodePageIndexOutOfRange    = "page_index_out_of_range"
	CodeArtifactMutationFailed = "artifact_mutation_failed"
	CodeNotAuthorized          = "not_authorized"
	CodeInvalidRequest         = "invalid_request"
	CodeSignedURLUnavailable   = "signed_url_unavailable"
	CodeInternal               = "internal"
)

var errorCodes = []struct {
	err  error
	code string
}{
	// Annotator input errors come first since they are also wrapped in
	// ErrArtifactMutationFailed
	{ErrUnsupportedImageFormat, CodeUnsupportedImageFormat},
	{ErrPageIndexOutOfRange, CodePageIndexOutOfRange},
	{ErrDocumentNotFound, CodeDocumentNotFound},
	{ErrEntryNotFound, CodeEntryNotFound},
	{ErrDocumentNotSignable, CodeDocumentNotSignable},
	{ErrNotAuthorizedSigner, CodeNotAuthorizedSigner},
	{ErrInvalidState, CodeInvalidState},
	{ErrArtifactMutationFailed, CodeArtifactMutationFailed},
	{ErrNotAuthorized, CodeNotAuthorized},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrSignedURLUnavailable, CodeSignedURLUnavailable},
}

// ErrorCode returns the machine readable code for a workflow error
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, item := range errorCodes {
		if errors.Is(err, item.err) {
			return item.code
		}
	}
	return CodeInternal
}
