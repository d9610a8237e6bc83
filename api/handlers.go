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
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/endorse/annotator"
	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/workflow"
)

func (a *Api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{IsHealthy: true})
}

// decodeJSON reads a bounded JSON request body into v
func (a *Api) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxUploadBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %w", workflow.ErrInvalidRequest, err)
	}
	return nil
}

// handleCreateDocument handles POST /api/v1/documents. The multipart form
// carries the PDF as "file", a "title", the signers in order as repeated or
// comma separated "signers" values, and an optional "start" flag.
func (a *Api) handleCreateDocument(
	w http.ResponseWriter,
	r *http.Request,
	identity string,
) {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(a.config.MaxUploadBytes); err != nil {
		a.writeWorkflowError(w, r, fmt.Errorf("%w: %w", workflow.ErrInvalidRequest, err))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		a.writeWorkflowError(w, r, fmt.Errorf("%w: file: %w", workflow.ErrInvalidRequest, err))
		return
	}
	defer file.Close()
	source, err := io.ReadAll(file)
	if err != nil {
		a.writeWorkflowError(w, r, fmt.Errorf("%w: file: %w", workflow.ErrInvalidRequest, err))
		return
	}
	var signers []string
	for _, value := range r.MultipartForm.Value["signers"] {
		for signer := range strings.SplitSeq(value, ",") {
			if signer = strings.TrimSpace(signer); signer != "" {
				signers = append(signers, signer)
			}
		}
	}
	start := false
	if raw := r.FormValue("start"); raw != "" {
		start, err = strconv.ParseBool(raw)
		if err != nil {
			a.writeWorkflowError(w, r, fmt.Errorf("%w: start: %w", workflow.ErrInvalidRequest, err))
			return
		}
	}
	doc, err := a.workflow.CreateDocument(r.Context(), workflow.CreateDocumentRequest{
		Owner:   identity,
		Title:   r.FormValue("title"),
		Source:  source,
		Signers: signers,
		Start:   start,
	})
	if err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/documents/"+doc.ID)
	writeJSON(w, http.StatusCreated, newDocumentResponse(doc))
}

func (a *Api) handleListOwned(
	w http.ResponseWriter,
	r *http.Request,
	identity string,
) {
	docs, err := a.workflow.ListOwned(r.Context(), identity)
	a.writeDocumentPage(w, r, docs, err)
}

// handlePending handles GET /api/v1/pending and lists the documents waiting
// on the caller
func (a *Api) handlePending(
	w http.ResponseWriter,
	r *http.Request,
	identity string,
) {
	docs, err := a.workflow.QueryPendingFor(r.Context(), identity)
	a.writeDocumentPage(w, r, docs, err)
}

func (a *Api) writeDocumentPage(
	w http.ResponseWriter,
	r *http.Request,
	docs []models.Document,
	err error,
) {
	if err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	params, err := ParsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, workflow.CodeInvalidRequest, err.Error())
		return
	}
	SetPaginationHeaders(w, len(docs), params)
	writeJSON(w, http.StatusOK, newDocumentResponses(paginate(docs, params)))
}

func (a *Api) handleGetDocument(
	w http.ResponseWriter,
	r *http.Request,
	identity string,
) {
	doc, err := a.workflow.GetDocument(r.Context(), r.PathValue("id"), identity)
	if err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (a *Api) handleGetLedger(
	w http.ResponseWriter,
	r *http.Request,
	identity string,
) {
	entries, err := a.workflow.GetLedger(r.Context(), r.PathValue("id"), identity)
	if err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	ret := make([]EntryResponse, 0, len(entries))
	for i := range entries {
		ret = append(ret, newEntryResponse(&entries[i]))
	}
	writeJSON(w, http.StatusOK, ret)
}

func (a *Api) handleGetAuditTrail(
	w http.ResponseWriter,
	r *http.Request,
	identity string,
) {
	trail, err := a.workflow.GetAuditTrail(r.Context(), r.PathValue("id"), identity)
	if err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	ret := make([]AuditResponse, 0, len(trail))
	for _, entry := range trail {
		ret = append(ret, AuditResponse{
			ID:        entry.ID,
			Actor:     entry.ActorIdentity,
			Action:    string(entry.Action),
			Detail:    entry.Detail,
			CreatedAt: entry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, ret)
}

// handleGetArtifactURL accepts an optional ttl query value as a Go duration
func (a *Api) handleGetArtifactURL(
	w http.ResponseWriter,
	r *http.Request,
	identity string,
) {
	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		var err error
		ttl, err = time.ParseDuration(raw)
		if err != nil || ttl < 0 {
			writeError(w, http.StatusBadRequest, workflow.CodeInvalidRequest, "invalid ttl")
			return
		}
	}
	switch {
	case ttl == 0:
		ttl = workflow.DefaultURLTTL
	case ttl > workflow.MaxURLTTL:
		ttl = workflow.MaxURLTTL
	}
	rawURL, err := a.workflow.GetArtifactURL(r.Context(), r.PathValue("id"), identity, ttl)
	if err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ArtifactURLResponse{
		URL:       rawURL,
		ExpiresIn: int64(ttl / time.Second),
	})
}

func (a *Api) handleActivate(
	w http.ResponseWriter,
	r *http.Request,
	identity string,
) {
	doc, err := a.workflow.ActivateNext(r.Context(), r.PathValue("id"), identity)
	if err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (a *Api) handleSign(
	w http.ResponseWriter,
	r *http.Request,
	identity string,
) {
	var req SignRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	payload, err := req.payload()
	if err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	res, err := a.workflow.Sign(r.Context(), r.PathValue("id"), identity, payload, req.Notes)
	if err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSignResponse(res))
}

// payload converts the request into a workflow payload. A request without
// image or file approves the document without producing an artifact.
func (req SignRequest) payload() (workflow.Payload, error) {
	switch {
	case len(req.Image) > 0 && len(req.File) > 0:
		return nil, fmt.Errorf("%w: image and file are mutually exclusive", workflow.ErrInvalidRequest)
	case len(req.File) > 0:
		return workflow.UploadedFile{Data: req.File, ContentType: req.ContentType}, nil
	case len(req.Image) == 0:
		return nil, nil
	}
	img := workflow.InlineImage{Image: req.Image, Mode: workflow.PlacementAllPages}
	p := req.Placement
	if p == nil {
		return img, nil
	}
	if p.Mode != "" {
		img.Mode = workflow.PlacementMode(p.Mode)
	}
	img.Opacity = p.Opacity
	img.Height = p.Height
	img.MarginRight = p.MarginRight
	img.MarginBottom = p.MarginBottom
	if img.Mode == workflow.PlacementSinglePage {
		pageIndex := annotator.LastPage
		if p.PageIndex != nil {
			pageIndex = *p.PageIndex
		}
		img.Placement = annotator.Placement{
			PageIndex: pageIndex,
			X:         p.X,
			Y:         p.Y,
			Width:     p.Width,
			Height:    p.Height,
		}
	}
	return img, nil
}

func (a *Api) handleReject(
	w http.ResponseWriter,
	r *http.Request,
	identity string,
) {
	var req RejectRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	doc, err := a.workflow.Reject(r.Context(), r.PathValue("id"), identity, req.Reason)
	if err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (a *Api) handleCancel(
	w http.ResponseWriter,
	r *http.Request,
	identity string,
) {
	doc, err := a.workflow.Cancel(r.Context(), r.PathValue("id"), identity)
	if err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (a *Api) handleRemind(
	w http.ResponseWriter,
	r *http.Request,
	identity string,
) {
	doc, err := a.workflow.Remind(r.Context(), r.PathValue("id"), identity)
	if err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newDocumentResponse(doc))
}

func (a *Api) handleForceStatus(
	w http.ResponseWriter,
	r *http.Request,
	identity string,
) {
	var req ForceStatusRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	doc, err := a.workflow.ForceStatus(r.Context(), workflow.ForceStatusRequest{
		DocumentID:  r.PathValue("id"),
		Actor:       identity,
		Status:      models.DocumentStatus(req.Status),
		EntryID:     req.EntryID,
		EntryStatus: models.EntryStatus(req.EntryStatus),
		Reason:      req.Reason,
	})
	if err != nil {
		a.writeWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(doc))
}
