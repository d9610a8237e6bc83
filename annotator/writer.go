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

package annotator

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/digitorus/pdf"
	"github.com/klauspost/compress/zlib"
)

// Inheritance walks stop after this many /Parent links
const maxTreeDepth = 64

var errInlineStream = errors.New("stream object is not an indirect reference")

type document struct {
	reader     *pdf.Reader
	data       []byte
	startXref  int64
	size       uint32
	xrefStream bool
}

func openDocument(data []byte) (*document, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if bytes.Contains(data, []byte("/Encrypt")) {
			return nil, fmt.Errorf("%w: %w", ErrEncryptedDocument, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	trailer := r.Trailer()
	if trailer.Key("Encrypt").Kind() != pdf.Null {
		return nil, ErrEncryptedDocument
	}
	if trailer.Key("Root").Kind() != pdf.Dict {
		return nil, fmt.Errorf("%w: missing document catalog", ErrMalformedDocument)
	}
	size := trailer.Key("Size").Int64()
	if size <= 0 || size > math.MaxUint32/2 {
		return nil, fmt.Errorf("%w: invalid trailer /Size %d", ErrMalformedDocument, size)
	}
	startXref, err := findStartXref(data)
	if err != nil {
		return nil, err
	}
	return &document{
		reader:     r,
		data:       data,
		startXref:  startXref,
		size:       uint32(size),
		xrefStream: !bytes.HasPrefix(bytes.TrimLeft(data[startXref:], " \t\r\n"), []byte("xref")),
	}, nil
}

func findStartXref(data []byte) (int64, error) {
	i := bytes.LastIndex(data, []byte("startxref"))
	if i < 0 {
		return 0, fmt.Errorf("%w: missing startxref", ErrMalformedDocument)
	}
	rest := bytes.TrimLeft(data[i+len("startxref"):], " \t\r\n")
	end := bytes.IndexFunc(rest, func(r rune) bool {
		return r < '0' || r > '9'
	})
	if end < 0 {
		end = len(rest)
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil || off < 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("%w: invalid startxref", ErrMalformedDocument)
	}
	return off, nil
}

type rect struct {
	llx, lly, urx, ury float64
}

func (r rect) width() float64 {
	return r.urx - r.llx
}

func (r rect) height() float64 {
	return r.ury - r.lly
}

var letterBox = rect{urx: 612, ury: 792}

// pageBox returns the visible area of a page: the CropBox when present,
// otherwise the MediaBox
func pageBox(page pdf.Value) rect {
	box := inherited(page, "CropBox")
	if box.Kind() != pdf.Array {
		box = inherited(page, "MediaBox")
	}
	if box.Kind() != pdf.Array || box.Len() < 4 {
		return letterBox
	}
	var v [4]float64
	for i := range v {
		v[i] = number(box.Index(i))
	}
	ret := rect{
		llx: math.Min(v[0], v[2]),
		lly: math.Min(v[1], v[3]),
		urx: math.Max(v[0], v[2]),
		ury: math.Max(v[1], v[3]),
	}
	if ret.width() <= 0 || ret.height() <= 0 {
		return letterBox
	}
	return ret
}

// inherited looks up a page attribute, following /Parent links
func inherited(page pdf.Value, key string) pdf.Value {
	v := page
	for range maxTreeDepth {
		if v.Kind() != pdf.Dict {
			break
		}
		if x := v.Key(key); x.Kind() != pdf.Null {
			return x
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

func number(v pdf.Value) float64 {
	switch v.Kind() {
	case pdf.Integer:
		return float64(v.Int64())
	case pdf.Real:
		return v.Float64()
	}
	return 0
}

// imageResources names the objects written for one application
type imageResources struct {
	imageName string
	stateName string
	imageID   uint32
	stateID   uint32
}

func (r *imageResources) overlay(target rect) []byte {
	var b strings.Builder
	// Closes the save emitted ahead of the original content
	b.WriteString("Q\nq\n")
	if r.stateName != "" {
		fmt.Fprintf(&b, "/%s gs\n", r.stateName)
	}
	fmt.Fprintf(
		&b,
		"%s 0 0 %s %s %s cm\n/%s Do\nQ\n",
		formatNumber(target.width()),
		formatNumber(target.height()),
		formatNumber(target.llx),
		formatNumber(target.lly),
		r.imageName,
	)
	return []byte(b.String())
}

type xrefEntry struct {
	offset int64
	gen    uint16
}

// incrementalWriter appends objects and a new cross-reference section after
// the unmodified source bytes
type incrementalWriter struct {
	doc     *document
	buf     bytes.Buffer
	entries map[uint32]xrefEntry
	nextID  uint32
}

func newIncrementalWriter(doc *document) *incrementalWriter {
	w := &incrementalWriter{
		doc:     doc,
		entries: make(map[uint32]xrefEntry),
		nextID:  doc.size,
	}
	w.buf.Grow(len(doc.data) + 64*1024)
	w.buf.Write(doc.data)
	if n := len(doc.data); n > 0 && doc.data[n-1] != '\n' && doc.data[n-1] != '\r' {
		w.buf.WriteByte('\n')
	}
	return w
}

func (w *incrementalWriter) reserve() uint32 {
	id := w.nextID
	w.nextID++
	return id
}

func (w *incrementalWriter) beginObject(id uint32, gen uint16) {
	w.entries[id] = xrefEntry{offset: int64(w.buf.Len()), gen: gen}
	fmt.Fprintf(&w.buf, "%d %d obj\n", id, gen)
}

func (w *incrementalWriter) endObject() {
	w.buf.WriteString("\nendobj\n")
}

func (w *incrementalWriter) writeStream(id uint32, dict string, data []byte) {
	w.beginObject(id, 0)
	fmt.Fprintf(&w.buf, "<<%s /Length %d>>\nstream\n", dict, len(data))
	w.buf.Write(data)
	w.buf.WriteString("\nendstream")
	w.endObject()
}

func (w *incrementalWriter) addContentStream(data []byte) uint32 {
	id := w.reserve()
	w.writeStream(id, "", data)
	return id
}

func (w *incrementalWriter) addImage(img *rasterImage, level int) *imageResources {
	var smask string
	if img.alpha != nil {
		maskID := w.reserve()
		w.writeStream(
			maskID,
			fmt.Sprintf(
				"/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /FlateDecode",
				img.width,
				img.height,
			),
			img.alpha,
		)
		smask = fmt.Sprintf(" /SMask %d 0 R", maskID)
	}
	var decode string
	if img.decode != "" {
		decode = " /Decode " + img.decode
	}
	id := w.reserve()
	w.writeStream(
		id,
		fmt.Sprintf(
			"/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /%s /BitsPerComponent 8 /Filter /%s%s%s",
			img.width,
			img.height,
			img.colorSpace,
			img.filter,
			decode,
			smask,
		),
		img.data,
	)
	return &imageResources{
		imageID:   id,
		imageName: fmt.Sprintf("EndorseIm%d", id),
	}
}

func (w *incrementalWriter) addOpacity(res *imageResources, opacity float64) {
	id := w.reserve()
	w.beginObject(id, 0)
	fmt.Fprintf(
		&w.buf,
		"<</Type /ExtGState /ca %s /CA %s>>",
		formatNumber(opacity),
		formatNumber(opacity),
	)
	w.endObject()
	res.stateID = id
	res.stateName = fmt.Sprintf("EndorseGS%d", id)
}

// rewritePage writes a new revision of the page object with the save stream
// ahead of the original content, the overlay after it, and the image merged
// into the effective resources
func (w *incrementalWriter) rewritePage(
	page pdf.Value,
	saveID uint32,
	overlayID uint32,
	res *imageResources,
) error {
	var body bytes.Buffer
	body.WriteString("<<")
	for _, key := range page.Keys() {
		if key == "Contents" || key == "Resources" {
			continue
		}
		writeName(&body, key)
		body.WriteByte(' ')
		if err := writeChild(&body, page.Key(key), page); err != nil {
			return err
		}
		body.WriteByte(' ')
	}
	body.WriteString("/Contents [")
	fmt.Fprintf(&body, "%d 0 R", saveID)
	contents := page.Key("Contents")
	switch contents.Kind() {
	case pdf.Stream:
		body.WriteByte(' ')
		writeRef(&body, contents)
	case pdf.Array:
		for i := range contents.Len() {
			item := contents.Index(i)
			if item.Kind() != pdf.Stream {
				continue
			}
			body.WriteByte(' ')
			writeRef(&body, item)
		}
	}
	fmt.Fprintf(&body, " %d 0 R] /Resources ", overlayID)
	additions := map[string]string{
		"XObject": fmt.Sprintf("/%s %d 0 R", res.imageName, res.imageID),
	}
	if res.stateName != "" {
		additions["ExtGState"] = fmt.Sprintf("/%s %d 0 R", res.stateName, res.stateID)
	}
	if err := writeResources(&body, inherited(page, "Resources"), additions); err != nil {
		return err
	}
	body.WriteString(">>")

	ptr := page.GetPtr()
	w.beginObject(ptr.GetID(), ptr.GetGen())
	w.buf.Write(body.Bytes())
	w.endObject()
	return nil
}

func writeResources(b *bytes.Buffer, res pdf.Value, additions map[string]string) error {
	b.WriteString("<<")
	if res.Kind() == pdf.Dict {
		for _, key := range res.Keys() {
			writeName(b, key)
			b.WriteByte(' ')
			extra, ok := additions[key]
			if !ok {
				if err := writeChild(b, res.Key(key), res); err != nil {
					return err
				}
				b.WriteByte(' ')
				continue
			}
			delete(additions, key)
			sub := res.Key(key)
			b.WriteString("<<")
			if sub.Kind() == pdf.Dict {
				for _, name := range sub.Keys() {
					writeName(b, name)
					b.WriteByte(' ')
					if err := writeChild(b, sub.Key(name), sub); err != nil {
						return err
					}
					b.WriteByte(' ')
				}
			}
			b.WriteString(extra)
			b.WriteString(">> ")
		}
	}
	categories := make([]string, 0, len(additions))
	for key := range additions {
		categories = append(categories, key)
	}
	slices.Sort(categories)
	for _, key := range categories {
		fmt.Fprintf(b, "/%s <<%s>> ", key, additions[key])
	}
	b.WriteString(">>")
	return nil
}

func (w *incrementalWriter) finish() ([]byte, error) {
	if w.doc.xrefStream {
		return w.finishStream()
	}
	return w.finishTable()
}

func (w *incrementalWriter) sortedIDs() []uint32 {
	ids := make([]uint32, 0, len(w.entries))
	for id := range w.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// subsections groups sorted object numbers into contiguous runs
func subsections(ids []uint32) [][]uint32 {
	var ret [][]uint32
	for i, id := range ids {
		if i > 0 && id == ids[i-1]+1 {
			ret[len(ret)-1] = append(ret[len(ret)-1], id)
			continue
		}
		ret = append(ret, []uint32{id})
	}
	return ret
}

func (w *incrementalWriter) trailerEntries(b *bytes.Buffer) error {
	trailer := w.doc.reader.Trailer()
	for _, key := range []string{"Root", "Info", "ID"} {
		v := trailer.Key(key)
		if v.Kind() == pdf.Null {
			continue
		}
		fmt.Fprintf(b, " /%s ", key)
		if err := writeChild(b, v, trailer); err != nil {
			return err
		}
	}
	fmt.Fprintf(b, " /Prev %d", w.doc.startXref)
	return nil
}

func (w *incrementalWriter) finishTable() ([]byte, error) {
	xrefOffset := w.buf.Len()
	w.buf.WriteString("xref\n")
	for _, sub := range subsections(w.sortedIDs()) {
		fmt.Fprintf(&w.buf, "%d %d\n", sub[0], len(sub))
		for _, id := range sub {
			e := w.entries[id]
			fmt.Fprintf(&w.buf, "%010d %05d n \n", e.offset, e.gen)
		}
	}
	var trailer bytes.Buffer
	fmt.Fprintf(&trailer, "<</Size %d", w.nextID)
	if err := w.trailerEntries(&trailer); err != nil {
		return nil, err
	}
	trailer.WriteString(">>")
	w.buf.WriteString("trailer\n")
	w.buf.Write(trailer.Bytes())
	fmt.Fprintf(&w.buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return w.buf.Bytes(), nil
}

func (w *incrementalWriter) finishStream() ([]byte, error) {
	id := w.reserve()
	xrefOffset := w.buf.Len()
	w.entries[id] = xrefEntry{offset: int64(xrefOffset)}
	offsetWidth := 4
	if xrefOffset > math.MaxUint32 {
		offsetWidth = 8
	}
	var rows bytes.Buffer
	var index strings.Builder
	for _, sub := range subsections(w.sortedIDs()) {
		fmt.Fprintf(&index, " %d %d", sub[0], len(sub))
		for _, obj := range sub {
			e := w.entries[obj]
			rows.WriteByte(1)
			var off [8]byte
			binary.BigEndian.PutUint64(off[:], uint64(e.offset))
			rows.Write(off[8-offsetWidth:])
			rows.Write(binary.BigEndian.AppendUint16(nil, e.gen))
		}
	}
	data, err := deflate(rows.Bytes(), zlib.DefaultCompression)
	if err != nil {
		return nil, err
	}
	var dict bytes.Buffer
	fmt.Fprintf(
		&dict,
		"/Type /XRef /Size %d /W [1 %d 2] /Index [%s]",
		w.nextID,
		offsetWidth,
		strings.TrimSpace(index.String()),
	)
	if err := w.trailerEntries(&dict); err != nil {
		return nil, err
	}
	dict.WriteString(" /Filter /FlateDecode")
	fmt.Fprintf(&w.buf, "%d 0 obj\n<<%s /Length %d>>\nstream\n", id, dict.String(), len(data))
	w.buf.Write(data)
	w.buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&w.buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return w.buf.Bytes(), nil
}

// writeChild serializes a value found inside parent. Values that resolve to
// a different object than their container were indirect references in the
// source and are written back as references.
func writeChild(b *bytes.Buffer, v pdf.Value, parent pdf.Value) error {
	ptr := v.GetPtr()
	if ptr.GetID() != 0 && ptr != parent.GetPtr() {
		writeRef(b, v)
		return nil
	}
	return writeDirect(b, v)
}

func writeRef(b *bytes.Buffer, v pdf.Value) {
	ptr := v.GetPtr()
	fmt.Fprintf(b, "%d %d R", ptr.GetID(), ptr.GetGen())
}

func writeDirect(b *bytes.Buffer, v pdf.Value) error {
	switch v.Kind() {
	case pdf.Null:
		b.WriteString("null")
	case pdf.Bool:
		b.WriteString(strconv.FormatBool(v.Bool()))
	case pdf.Integer:
		b.WriteString(strconv.FormatInt(v.Int64(), 10))
	case pdf.Real:
		b.WriteString(formatNumber(v.Float64()))
	case pdf.String:
		b.WriteByte('<')
		b.WriteString(hex.EncodeToString([]byte(v.RawString())))
		b.WriteByte('>')
	case pdf.Name:
		writeName(b, v.Name())
	case pdf.Dict:
		b.WriteString("<<")
		for _, key := range v.Keys() {
			writeName(b, key)
			b.WriteByte(' ')
			if err := writeChild(b, v.Key(key), v); err != nil {
				return err
			}
			b.WriteByte(' ')
		}
		b.WriteString(">>")
	case pdf.Array:
		b.WriteByte('[')
		for i := range v.Len() {
			if i > 0 {
				b.WriteByte(' ')
			}
			if err := writeChild(b, v.Index(i), v); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case pdf.Stream:
		return errInlineStream
	default:
		return fmt.Errorf("%w: unknown object kind", ErrMalformedDocument)
	}
	return nil
}

func writeName(b *bytes.Buffer, name string) {
	b.WriteByte('/')
	for i := range len(name) {
		c := name[i]
		if c < 0x21 || c > 0x7e || strings.IndexByte("#()<>[]{}/%", c) >= 0 {
			fmt.Fprintf(b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
}

func formatNumber(f float64) string {
	f = math.Round(f*10000) / 10000
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
