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
	"bytes"
	"fmt"
	"mime"
	"strings"

	"github.com/blinklabs-io/endorse/annotator"
)

type PlacementMode string

const (
	PlacementAllPages   PlacementMode = "all_pages"
	PlacementSinglePage PlacementMode = "single_page"
)

// DefaultSignatureHeight is used for all pages placement when no height is
// given
const DefaultSignatureHeight = 50

// Payload is the artifact part of a sign request: an InlineImage, an
// UploadedFile, or nil for an approval without artifact
type Payload interface {
	payload()
}

// InlineImage is a raster signature composited onto the current document
// artifact
type InlineImage struct {
	Image        []byte
	Mode         PlacementMode
	Placement    annotator.Placement
	Height       float64
	MarginRight  float64
	MarginBottom float64
	Opacity      float64
}

// UploadedFile is a file the signer prepared outside the system, such as a
// document signed with a certificate
type UploadedFile struct {
	Data        []byte
	ContentType string
}

func (InlineImage) payload()  {}
func (UploadedFile) payload() {}

func (p InlineImage) validate() error {
	if len(p.Image) == 0 {
		return fmt.Errorf("%w: empty signature image", ErrInvalidRequest)
	}
	switch p.Mode {
	case "", PlacementAllPages, PlacementSinglePage:
	default:
		return fmt.Errorf("%w: unknown placement mode %q", ErrInvalidRequest, p.Mode)
	}
	if p.Height < 0 || p.MarginRight < 0 || p.MarginBottom < 0 {
		return fmt.Errorf("%w: negative size or margin", ErrInvalidRequest)
	}
	return nil
}

func (p InlineImage) annotate(a *annotator.Annotator, source []byte) ([]byte, error) {
	if p.Mode == PlacementSinglePage {
		return a.EmbedOnPage(source, p.Image, p.Placement, p.Opacity)
	}
	height := p.Height
	if height == 0 {
		height = DefaultSignatureHeight
	}
	return a.EmbedOnAllPages(
		source,
		p.Image,
		height,
		p.MarginRight,
		p.MarginBottom,
		p.Opacity,
	)
}

var pdfMagic = []byte("%PDF-")

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// fileExtension picks the artifact extension for an uploaded file. PDFs are
// recognized by content regardless of the declared type.
func (p UploadedFile) fileExtension() string {
	if isPDF(p.Data) {
		return "pdf"
	}
	mediaType, _, err := mime.ParseMediaType(p.ContentType)
	if err != nil {
		return "bin"
	}
	switch mediaType {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return "bin"
	}
	return strings.TrimPrefix(exts[0], ".")
}

func (p UploadedFile) contentType() string {
	if isPDF(p.Data) {
		return "application/pdf"
	}
	if p.ContentType == "" {
		return "application/octet-stream"
	}
	return p.ContentType
}
