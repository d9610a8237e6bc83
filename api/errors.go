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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blinklabs-io/endorse/workflow"
)

var errorStatus = map[string]int{
	workflow.CodeDocumentNotFound:       http.StatusNotFound,
	workflow.CodeEntryNotFound:          http.StatusNotFound,
	workflow.CodeDocumentNotSignable:    http.StatusConflict,
	workflow.CodeInvalidState:           http.StatusConflict,
	workflow.CodeNotAuthorizedSigner:    http.StatusForbidden,
	workflow.CodeNotAuthorized:          http.StatusForbidden,
	workflow.CodeUnsupportedImageFormat: http.StatusUnprocessableEntity,
	workflow.CodePageIndexOutOfRange:    http.StatusUnprocessableEntity,
	workflow.CodeInvalidRequest:         http.StatusBadRequest,
	workflow.CodeArtifactMutationFailed: http.StatusBadGateway,
	workflow.CodeSignedURLUnavailable:   http.StatusNotImplemented,
}

// writeJSON writes a JSON response with the given status code
func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(
	w http.ResponseWriter,
	status int,
	code string,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      code,
		Message:    message,
	})
}

// writeWorkflowError maps a workflow error onto its HTTP status. Internal
// errors are logged and answered without detail.
func (a *Api) writeWorkflowError(
	w http.ResponseWriter,
	r *http.Request,
	err error,
) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeError(w, http.StatusRequestEntityTooLarge, workflow.CodeInvalidRequest, err.Error())
		return
	}
	code := workflow.ErrorCode(err)
	status, ok := errorStatus[code]
	if !ok {
		a.logger.Error(
			"request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, workflow.CodeInternal, "internal error")
		return
	}
	if status >= http.StatusInternalServerError {
		a.logger.Warn(
			"request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, code, err.Error())
}
