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
	"time"

	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/workflow"
)

// HealthResponse is returned by GET /health
type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

type DocumentResponse struct {
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Owner           string    `json:"owner"`
	Status          string    `json:"status"`
	NextSigner      string    `json:"next_signer,omitempty"`
	SourceArtifact  string    `json:"source_artifact"`
	CurrentArtifact string    `json:"current_artifact"`
}

func newDocumentResponse(doc *models.Document) DocumentResponse {
	return DocumentResponse{
		ID:              doc.ID,
		Title:           doc.Title,
		Owner:           doc.OwnerIdentity,
		Status:          string(doc.Status),
		NextSigner:      doc.NextSigner(),
		SourceArtifact:  doc.SourceArtifactRef,
		CurrentArtifact: doc.ArtifactRef(),
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func newDocumentResponses(docs []models.Document) []DocumentResponse {
	ret := make([]DocumentResponse, 0, len(docs))
	for i := range docs {
		ret = append(ret, newDocumentResponse(&docs[i]))
	}
	return ret
}

type EntryResponse struct {
	SignedAt        *time.Time `json:"signed_at,omitempty"`
	ID              string     `json:"id"`
	Signer          string     `json:"signer"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	SignedArtifact  string     `json:"signed_artifact,omitempty"`
	Order           int        `json:"order"`
}

func newEntryResponse(entry *models.SignatureEntry) EntryResponse {
	ret := EntryResponse{
		ID:              entry.ID,
		Order:           entry.OrderIndex,
		Signer:          entry.SignerIdentity,
		Status:          string(entry.Status),
		Notes:           entry.Notes,
		RejectionReason: entry.RejectionReason,
		SignedAt:        entry.SignedAt,
	}
	if entry.SignedArtifactRef != nil {
		ret.SignedArtifact = *entry.SignedArtifactRef
	}
	return ret
}

type AuditResponse struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
}

// PlacementRequest positions an inline signature image. Mode all_pages uses
// Height and the margins; single_page uses the page and box fields. A missing
// page index selects the last page and a missing X centers the image.
type PlacementRequest struct {
	PageIndex    *int     `json:"page_index,omitempty"`
	X            *float64 `json:"x,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	Y            float64  `json:"y,omitempty"`
	Width        float64  `json:"width,omitempty"`
	Height       float64  `json:"height,omitempty"`
	MarginRight  float64  `json:"margin_right,omitempty"`
	MarginBottom float64  `json:"margin_bottom,omitempty"`
	Opacity      float64  `json:"opacity,omitempty"`
}

// SignRequest carries at most one of Image and File, base64 encoded
type SignRequest struct {
	Placement   *PlacementRequest `json:"placement,omitempty"`
	Image       []byte            `json:"image,omitempty"`
	File        []byte            `json:"file,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Notes       string            `json:"notes,omitempty"`
}

type SignResponse struct {
	Entry       EntryResponse `json:"entry"`
	Status      string        `json:"status"`
	NextSigner  string        `json:"next_signer,omitempty"`
	ArtifactRef string        `json:"artifact_ref,omitempty"`
}

func newSignResponse(res *workflow.SignResult) SignResponse {
	return SignResponse{
		Status:      string(res.Status),
		NextSigner:  res.NextSigner,
		Entry:       newEntryResponse(res.Entry),
		ArtifactRef: res.ArtifactRef,
	}
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type ForceStatusRequest struct {
	Status      string `json:"status,omitempty"`
	EntryID     string `json:"entry_id,omitempty"`
	EntryStatus string `json:"entry_status,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type ArtifactURLResponse struct {
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}
