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

package annotator_test

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/digitorus/pdf"
	"github.com/stretchr/testify/require"
)

type testPDF struct {
	data       []byte
	contentIDs []int
}

// buildPDF generates a letter sized document with the requested number of
// pages. The MediaBox and a resource dictionary are inherited from the page
// tree root.
func buildPDF(t *testing.T, pages int, xrefStream bool) testPDF {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := map[int]int{}
	obj := func(id int, body string) {
		offsets[id] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", id, body)
	}
	kids := make([]string, 0, pages)
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 3+2*i))
	}
	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	obj(2, fmt.Sprintf(
		"<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] /Resources << /ProcSet [/PDF] >> >>",
		strings.Join(kids, " "),
		pages,
	))
	ret := testPDF{}
	for i := range pages {
		pageID, contentID := 3+2*i, 4+2*i
		obj(pageID, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Contents %d 0 R >>", contentID))
		content := fmt.Sprintf("q 0 0 1 rg 72 %d 100 20 re f Q\n", 700-i)
		obj(contentID, fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(content), content))
		ret.contentIDs = append(ret.contentIDs, contentID)
	}
	size := 3 + 2*pages
	if !xrefStream {
		xref := buf.Len()
		fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", size)
		for id := 1; id < size; id++ {
			fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[id])
		}
		fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
		ret.data = buf.Bytes()
		return ret
	}
	xrefID := size
	offsets[xrefID] = buf.Len()
	var rows bytes.Buffer
	rows.Write([]byte{0, 0, 0, 0, 0, 0xff, 0xff})
	for id := 1; id <= xrefID; id++ {
		off := offsets[id]
		rows.Write([]byte{1, byte(off >> 24), byte(off >> 16), byte(off >> 8), byte(off), 0, 0})
	}
	fmt.Fprintf(
		&buf,
		"%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 2] /Root 1 0 R /Length %d >>\nstream\n",
		xrefID,
		xrefID+1,
		rows.Len(),
	)
	buf.Write(rows.Bytes())
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", offsets[xrefID])
	ret.data = buf.Bytes()
	return ret
}

// buildEncryptedPDF produces a single page document carrying a standard
// security handler dictionary
func buildEncryptedPDF(t *testing.T) []byte {
	t.Helper()
	src := buildPDF(t, 1, false).data
	pad := strings.Repeat("ab", 32)
	id := strings.Repeat("01", 16)
	return bytes.Replace(
		src,
		[]byte("/Root 1 0 R >>"),
		[]byte(fmt.Sprintf(
			"/Root 1 0 R /Encrypt << /Filter /Standard /V 1 /R 2 /Length 40 /O <%s> /U <%s> /P -4 >> /ID [<%s> <%s>] >>",
			pad, pad, id, id,
		)),
		1,
	)
}

func buildPNG(t *testing.T, w, h int, translucent bool) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			a := uint8(0xff)
			if translucent && (x+y)%2 == 0 {
				a = 0x40
			}
			img.SetNRGBA(x, y, color.NRGBA{R: 0x10, G: 0x20, B: uint8(x), A: a})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func buildJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func openPDF(t *testing.T, data []byte) *pdf.Reader {
	t.Helper()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return r
}

func readStream(t *testing.T, v pdf.Value) string {
	t.Helper()
	require.Equal(t, pdf.Stream, v.Kind())
	rc := v.Reader()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

// objectID returns the indirect object number v was loaded from
func objectID(v pdf.Value) uint32 {
	ptr := v.GetPtr()
	return ptr.GetID()
}
