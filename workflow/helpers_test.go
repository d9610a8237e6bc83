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

package workflow_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/endorse/auth"
	"github.com/blinklabs-io/endorse/database"
	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/event"
	"github.com/blinklabs-io/endorse/workflow"
)

const (
	owner = "owner@example.com"
	alice = "alice@example.com"
	bob   = "bob@example.com"
	carol = "carol@example.com"
	admin = "admin@example.com"
)

type harness struct {
	db   *database.Database
	bus  *event.EventBus
	ctrl *workflow.Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	bus := event.NewEventBus(nil, nil)
	ctrl, err := workflow.NewController(
		db,
		workflow.WithEventBus(bus),
		workflow.WithAuthorizer(auth.NewStaticAuthorizer([]string{admin})),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		bus.Stop()
		_ = db.Close()
	})
	return &harness{db: db, bus: bus, ctrl: ctrl}
}

func (h *harness) create(t *testing.T, start bool, signers ...string) *models.Document {
	t.Helper()
	doc, err := h.ctrl.CreateDocument(context.Background(), workflow.CreateDocumentRequest{
		Owner:   owner,
		Title:   "Supply agreement",
		Source:  buildPDF(2),
		Signers: signers,
		Start:   start,
	})
	require.NoError(t, err)
	return doc
}

func (h *harness) actions(t *testing.T, documentID string) []models.AuditAction {
	t.Helper()
	trail, err := h.ctrl.GetAuditTrail(context.Background(), documentID, owner)
	require.NoError(t, err)
	ret := make([]models.AuditAction, 0, len(trail))
	for _, entry := range trail {
		ret = append(ret, entry.Action)
	}
	return ret
}

func (h *harness) entryStatuses(t *testing.T, documentID string) []models.EntryStatus {
	t.Helper()
	entries, err := h.ctrl.GetLedger(context.Background(), documentID, owner)
	require.NoError(t, err)
	ret := make([]models.EntryStatus, 0, len(entries))
	for _, entry := range entries {
		ret = append(ret, entry.Status)
	}
	return ret
}

// buildPDF generates a minimal letter sized document with a classic xref
// table
func buildPDF(pages int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := map[int]int{}
	obj := func(id int, body string) {
		offsets[id] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", id, body)
	}
	var kids string
	for i := range pages {
		kids += fmt.Sprintf(" %d 0 R", 3+2*i)
	}
	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	obj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s ] /Count %d /MediaBox [0 0 612 792] >>", kids, pages))
	for i := range pages {
		content := "q 0 0 1 rg 72 700 100 20 re f Q\n"
		obj(3+2*i, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Contents %d 0 R >>", 4+2*i))
		obj(4+2*i, fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(content), content))
	}
	size := 3 + 2*pages
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for id := 1; id < size; id++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[id])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
	return buf.Bytes()
}

func buildPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 16))
	for y := range 16 {
		for x := range 40 {
			img.SetNRGBA(x, y, color.NRGBA{R: 0x20, G: 0x20, B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
