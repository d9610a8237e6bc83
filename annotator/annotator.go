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

// Package annotator composites raster signature images onto existing PDF
// documents. Output is always an incremental update of the input: the source
// bytes are an exact prefix of the result.
package annotator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/digitorus/pdf"
	"github.com/klauspost/compress/zlib"
)

var (
	ErrUnsupportedImageFormat = errors.New("unsupported image format")
	ErrPageIndexOutOfRange    = errors.New("page index out of range")
	ErrEncryptedDocument      = errors.New("encrypted documents cannot be annotated")
	ErrMalformedDocument      = errors.New("malformed PDF document")
)

// LastPage selects the last page of a document in Placement.PageIndex
const LastPage = -1

// Placement positions an image on a single page. Coordinates are in points
// relative to the lower left corner of the visible page area. A nil X centers
// the image horizontally. A zero Width or Height is derived from the image
// aspect ratio.
type Placement struct {
	X         *float64
	PageIndex int
	Y         float64
	Width     float64
	Height    float64
}

type Annotator struct {
	logger           *slog.Logger
	compressionLevel int
}

type AnnotatorOption func(*Annotator)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) AnnotatorOption {
	return func(a *Annotator) {
		a.logger = logger
	}
}

// WithCompressionLevel sets the zlib level used for image streams
func WithCompressionLevel(level int) AnnotatorOption {
	return func(a *Annotator) {
		a.compressionLevel = level
	}
}

func New(opts ...AnnotatorOption) *Annotator {
	a := &Annotator{
		compressionLevel: zlib.DefaultCompression,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return a
}

// EmbedOnPage draws the image on one page. PageIndex is zero based and
// LastPage selects the final page.
func (a *Annotator) EmbedOnPage(
	pdfBytes []byte,
	imageBytes []byte,
	placement Placement,
	opacity float64,
) ([]byte, error) {
	selectPage := func(count int) ([]int, error) {
		idx := placement.PageIndex
		if idx == LastPage {
			idx = count - 1
		}
		if idx < 0 || idx >= count {
			return nil, fmt.Errorf(
				"%w: page %d of %d",
				ErrPageIndexOutOfRange,
				placement.PageIndex,
				count,
			)
		}
		return []int{idx + 1}, nil
	}
	place := func(box rect, img *rasterImage) rect {
		w, h := scaledSize(img, placement.Width, placement.Height)
		x := box.llx + (box.width()-w)/2
		if placement.X != nil {
			x = box.llx + *placement.X
		}
		return rect{llx: x, lly: box.lly + placement.Y, urx: x + w, ury: box.lly + placement.Y + h}
	}
	return a.apply(pdfBytes, imageBytes, opacity, selectPage, place)
}

// EmbedOnAllPages anchors the image to the bottom right corner of every page,
// offset by the margins. The width follows the image aspect ratio.
func (a *Annotator) EmbedOnAllPages(
	pdfBytes []byte,
	imageBytes []byte,
	height float64,
	marginRight float64,
	marginBottom float64,
	opacity float64,
) ([]byte, error) {
	selectPages := func(count int) ([]int, error) {
		ret := make([]int, count)
		for i := range ret {
			ret[i] = i + 1
		}
		return ret, nil
	}
	place := func(box rect, img *rasterImage) rect {
		w, h := scaledSize(img, 0, height)
		x := box.urx - w - marginRight
		y := box.lly + marginBottom
		return rect{llx: x, lly: y, urx: x + w, ury: y + h}
	}
	return a.apply(pdfBytes, imageBytes, opacity, selectPages, place)
}

func (a *Annotator) apply(
	pdfBytes []byte,
	imageBytes []byte,
	opacity float64,
	selectPages func(int) ([]int, error),
	place func(rect, *rasterImage) rect,
) (out []byte, err error) {
	// The PDF parser panics on some malformed input
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrMalformedDocument, r)
		}
	}()
	img, err := decodeImage(imageBytes, a.compressionLevel)
	if err != nil {
		return nil, err
	}
	doc, err := openDocument(pdfBytes)
	if err != nil {
		return nil, err
	}
	pageNums, err := selectPages(doc.reader.NumPage())
	if err != nil {
		return nil, err
	}
	if len(pageNums) == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrMalformedDocument)
	}
	w := newIncrementalWriter(doc)
	res := w.addImage(img, a.compressionLevel)
	if opacity > 0 && opacity < 1 {
		w.addOpacity(res, opacity)
	}
	saveID := w.addContentStream([]byte("q\n"))
	for _, num := range pageNums {
		page := doc.reader.Page(num).V
		ptr := page.GetPtr()
		if page.Kind() != pdf.Dict || ptr.GetID() == 0 {
			return nil, fmt.Errorf("%w: page %d is not an indirect dictionary", ErrMalformedDocument, num)
		}
		target := place(pageBox(page), img)
		overlayID := w.addContentStream(res.overlay(target))
		if err := w.rewritePage(page, saveID, overlayID, res); err != nil {
			return nil, fmt.Errorf("page %d: %w", num, err)
		}
	}
	out, err = w.finish()
	if err != nil {
		return nil, err
	}
	a.logger.Debug(
		"annotated document",
		"component", "annotator",
		"pages", len(pageNums),
		"image_width", img.width,
		"image_height", img.height,
		"input_bytes", len(pdfBytes),
		"output_bytes", len(out),
	)
	return out, nil
}

// scaledSize returns the drawn size of the image. Zero dimensions follow the
// image aspect ratio, and both zero means one point per pixel.
func scaledSize(img *rasterImage, width, height float64) (float64, float64) {
	iw, ih := float64(img.width), float64(img.height)
	switch {
	case width <= 0 && height <= 0:
		return iw, ih
	case width <= 0:
		return height * iw / ih, height
	case height <= 0:
		return width, width * ih / iw
	}
	return width, height
}
