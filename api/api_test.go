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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/blinklabs-io/endorse/auth"
	"github.com/blinklabs-io/endorse/database"
	"github.com/blinklabs-io/endorse/workflow"
)

const (
	owner    = "owner@example.com"
	alice    = "alice@example.com"
	bob      = "bob@example.com"
	stranger = "mallory@example.com"
	admin    = "admin@example.com"
	password = "correct horse"
)

type testServer struct {
	api     *Api
	handler http.Handler
	db      *database.Database
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	hashes := map[string]string{}
	for _, identity := range []string{owner, alice, bob, stranger, admin} {
		hashes[identity] = hash
	}
	creds, err := auth.NewCredentials(hashes)
	require.NoError(t, err)
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	ctrl, err := workflow.NewController(
		db,
		workflow.WithAuthorizer(auth.NewStaticAuthorizer([]string{admin})),
	)
	require.NoError(t, err)
	a := New(
		ApiConfig{
			ListenAddress: "127.0.0.1:0",
			Credentials:   creds,
			Artifacts:     LocalArtifacts(db),
		},
		ctrl,
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
	)
	return &testServer{api: a, handler: a.Handler(), db: db}
}

func (s *testServer) do(
	t *testing.T,
	identity string,
	method string,
	target string,
	body any,
) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != "" {
		req.SetBasicAuth(identity, password)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) create(t *testing.T, start bool, signers ...string) DocumentResponse {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "contract.pdf")
	require.NoError(t, err)
	_, err = fw.Write(buildPDF())
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("title", "Contract"))
	require.NoError(t, mw.WriteField("signers", strings.Join(signers, ",")))
	require.NoError(t, mw.WriteField("start", fmt.Sprint(start)))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth(owner, password)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var doc DocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "/api/v1/documents/"+doc.ID, rec.Header().Get("Location"))
	return doc
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var ret T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret), rec.Body.String())
	return ret
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, code, resp.Error)
	assert.Equal(t, status, resp.StatusCode)
}

func buildPDF() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int, 5)
	obj := func(id int, body string) {
		offsets[id] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", id, body)
	}
	content := "q 72 700 100 20 re f Q\n"
	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>")
	obj(3, "<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>")
	obj(4, fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(content), content))
	xref := buf.Len()
	buf.WriteString("xref\n0 5\n0000000000 65535 f \n")
	for id := 1; id < 5; id++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[id])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 5 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func buildPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 30, 10))
	for i := range img.Pix {
		img.Pix[i] = 0x40
	}
	img.SetGray(0, 0, color.Gray{Y: 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestStartStop(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.api.Start(t.Context()))
	s.api.mu.Lock()
	assert.NotNil(t, s.api.httpServer)
	s.api.mu.Unlock()

	require.Error(t, s.api.Start(t.Context()), "second start should fail")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.api.Stop(stopCtx))
	s.api.mu.Lock()
	assert.Nil(t, s.api.httpServer)
	s.api.mu.Unlock()
	require.NoError(t, s.api.Stop(stopCtx))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "", http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[HealthResponse](t, rec).IsHealthy)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "", http.MethodGet, "/api/v1/pending", nil)
	assertError(t, rec, http.StatusUnauthorized, "unauthenticated")
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pending", nil)
	req.SetBasicAuth(alice, "wrong")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assertError(t, rec, http.StatusUnauthorized, "unauthenticated")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/pending", nil)
	req.SetBasicAuth("nobody@example.com", password)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assertError(t, rec, http.StatusUnauthorized, "unauthenticated")
}

func TestDocumentFlow(t *testing.T) {
	s := newTestServer(t)
	doc := s.create(t, false, alice, bob)
	assert.Equal(t, "draft", doc.Status)
	assert.Equal(t, owner, doc.Owner)

	rec := s.do(t, owner, http.MethodPost, "/api/v1/documents/"+doc.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, alice, decode[DocumentResponse](t, rec).NextSigner)

	rec = s.do(t, alice, http.MethodGet, "/api/v1/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]DocumentResponse](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, doc.ID, pending[0].ID)
	assert.Equal(t, "1", rec.Header().Get("X-Pagination-Count-Total"))

	rec = s.do(t, alice, http.MethodPost, "/api/v1/documents/"+doc.ID+"/sign", SignRequest{
		Image: buildPNG(t),
		Placement: &PlacementRequest{
			Mode:   string(workflow.PlacementSinglePage),
			Y:      40,
			Width:  90,
			Height: 30,
		},
		Notes: "approved",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	signed := decode[SignResponse](t, rec)
	assert.Equal(t, "in_signature", signed.Status)
	assert.Equal(t, bob, signed.NextSigner)
	assert.NotEmpty(t, signed.ArtifactRef)
	assert.Equal(t, signed.ArtifactRef, signed.Entry.SignedArtifact)

	rec = s.do(t, bob, http.MethodPost, "/api/v1/documents/"+doc.ID+"/sign", SignRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "signed", decode[SignResponse](t, rec).Status)

	rec = s.do(t, bob, http.MethodGet, "/api/v1/documents/"+doc.ID+"/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]EntryResponse](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, "approved", entries[0].Notes)
	assert.Equal(t, "signed", entries[1].Status)
	assert.NotNil(t, entries[1].SignedAt)

	rec = s.do(t, owner, http.MethodGet, "/api/v1/documents/"+doc.ID+"/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trail := decode[[]AuditResponse](t, rec)
	require.Len(t, trail, 4)
	assert.Equal(t, "created", trail[0].Action)
	assert.Equal(t, "signed", trail[3].Action)
	assert.Equal(t, bob, trail[3].Actor)

	rec = s.do(t, owner, http.MethodGet, "/api/v1/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	owned := decode[[]DocumentResponse](t, rec)
	require.Len(t, owned, 1)
	assert.Equal(t, "signed", owned[0].Status)
	assert.Equal(t, signed.ArtifactRef, owned[0].CurrentArtifact)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	doc := s.create(t, true, alice, bob)
	base := "/api/v1/documents/" + doc.ID

	rec := s.do(t, bob, http.MethodPost, base+"/sign", SignRequest{})
	assertError(t, rec, http.StatusForbidden, workflow.CodeNotAuthorizedSigner)

	rec = s.do(t, alice, http.MethodGet, "/api/v1/documents/missing", nil)
	assertError(t, rec, http.StatusNotFound, workflow.CodeDocumentNotFound)

	rec = s.do(t, stranger, http.MethodGet, base, nil)
	assertError(t, rec, http.StatusForbidden, workflow.CodeNotAuthorized)

	rec = s.do(t, alice, http.MethodPost, base+"/sign", SignRequest{Image: []byte("BM not a png")})
	assertError(t, rec, http.StatusUnprocessableEntity, workflow.CodeUnsupportedImageFormat)

	pageIndex := 4
	rec = s.do(t, alice, http.MethodPost, base+"/sign", SignRequest{
		Image: buildPNG(t),
		Placement: &PlacementRequest{
			Mode:      string(workflow.PlacementSinglePage),
			PageIndex: &pageIndex,
			Width:     10,
			Height:    10,
		},
	})
	assertError(t, rec, http.StatusUnprocessableEntity, workflow.CodePageIndexOutOfRange)

	rec = s.do(t, alice, http.MethodPost, base+"/sign", map[string]any{"signature": "x"})
	assertError(t, rec, http.StatusBadRequest, workflow.CodeInvalidRequest)

	rec = s.do(t, alice, http.MethodPost, base+"/sign", SignRequest{
		Image: buildPNG(t),
		File:  buildPDF(),
	})
	assertError(t, rec, http.StatusBadRequest, workflow.CodeInvalidRequest)

	rec = s.do(t, owner, http.MethodPost, base+"/status", ForceStatusRequest{Status: "signed"})
	assertError(t, rec, http.StatusForbidden, workflow.CodeNotAuthorized)

	rec = s.do(t, alice, http.MethodPost, base+"/reject", RejectRequest{Reason: "no"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "rejected", decode[DocumentResponse](t, rec).Status)

	rec = s.do(t, bob, http.MethodPost, base+"/sign", SignRequest{})
	assertError(t, rec, http.StatusConflict, workflow.CodeDocumentNotSignable)

	rec = s.do(t, owner, http.MethodPost, base+"/remind", nil)
	assertError(t, rec, http.StatusConflict, workflow.CodeDocumentNotSignable)

	rec = s.do(t, admin, http.MethodPost, base+"/status", ForceStatusRequest{Status: "in_signature"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "in_signature", decode[DocumentResponse](t, rec).Status)
}

func TestCancelAndRemind(t *testing.T) {
	s := newTestServer(t)
	doc := s.create(t, true, alice)
	base := "/api/v1/documents/" + doc.ID

	rec := s.do(t, owner, http.MethodPost, base+"/remind", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = s.do(t, alice, http.MethodPost, base+"/cancel", nil)
	assertError(t, rec, http.StatusForbidden, workflow.CodeNotAuthorized)
	rec = s.do(t, admin, http.MethodPost, base+"/cancel", nil)
	assertError(t, rec, http.StatusForbidden, workflow.CodeNotAuthorized)

	rec = s.do(t, owner, http.MethodPost, base+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "rejected", decode[DocumentResponse](t, rec).Status)
}

func TestArtifactURL(t *testing.T) {
	s := newTestServer(t)
	doc := s.create(t, true, alice)

	rec := s.do(t, alice, http.MethodGet, "/api/v1/documents/"+doc.ID+"/artifact-url?ttl=10m", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ArtifactURLResponse](t, rec)
	assert.Equal(t, int64(600), resp.ExpiresIn)
	u, err := url.Parse(resp.URL)
	require.NoError(t, err)

	rec = s.do(t, "", http.MethodGet, u.RequestURI(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, buildPDF(), rec.Body.Bytes())

	query := u.Query()
	query.Set("signature", strings.Repeat("0", 64))
	u.RawQuery = query.Encode()
	rec = s.do(t, "", http.MethodGet, u.RequestURI(), nil)
	assertError(t, rec, http.StatusForbidden, "invalid_signature")

	rec = s.do(t, "", http.MethodGet, "/artifacts/"+doc.SourceArtifact, nil)
	assertError(t, rec, http.StatusForbidden, "invalid_signature")

	rec = s.do(t, alice, http.MethodGet, "/api/v1/documents/"+doc.ID+"/artifact-url?ttl=soon", nil)
	assertError(t, rec, http.StatusBadRequest, workflow.CodeInvalidRequest)
}

func TestSignRequestPayload(t *testing.T) {
	payload, err := SignRequest{}.payload()
	require.NoError(t, err)
	assert.Nil(t, payload)

	payload, err = SignRequest{File: []byte("x"), ContentType: "text/plain"}.payload()
	require.NoError(t, err)
	assert.Equal(t, workflow.UploadedFile{Data: []byte("x"), ContentType: "text/plain"}, payload)

	payload, err = SignRequest{Image: []byte{1}}.payload()
	require.NoError(t, err)
	img, ok := payload.(workflow.InlineImage)
	require.True(t, ok)
	assert.Equal(t, workflow.PlacementAllPages, img.Mode)

	payload, err = SignRequest{
		Image:     []byte{1},
		Placement: &PlacementRequest{Mode: "single_page", Width: 5, Height: 6},
	}.payload()
	require.NoError(t, err)
	img = payload.(workflow.InlineImage)
	assert.Equal(t, -1, img.Placement.PageIndex)
	assert.Nil(t, img.Placement.X)
	assert.InDelta(t, 6, img.Placement.Height, 0)
}
