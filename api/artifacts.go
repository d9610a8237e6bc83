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
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/blinklabs-io/endorse/database"
	"github.com/blinklabs-io/endorse/database/plugin/blob"
	"github.com/blinklabs-io/endorse/database/types"
)

// ArtifactStore serves artifacts behind URLs signed by this process
type ArtifactStore interface {
	blob.LocalURLVerifier
	GetArtifact(ctx context.Context, key string) ([]byte, error)
}

type localArtifacts struct {
	blob.LocalURLVerifier
	db *database.Database
}

func (l *localArtifacts) GetArtifact(ctx context.Context, key string) ([]byte, error) {
	return l.db.GetArtifact(ctx, key)
}

// LocalArtifacts returns the artifact store of db when its blob store signs
// URLs locally, or nil otherwise
func LocalArtifacts(db *database.Database) ArtifactStore {
	verifier, ok := db.Blob().(blob.LocalURLVerifier)
	if !ok {
		return nil
	}
	return &localArtifacts{LocalURLVerifier: verifier, db: db}
}

// handleArtifact serves GET /artifacts/{key...} for a valid signed URL
func (a *Api) handleArtifact(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	query := r.URL.Query()
	expires, err := strconv.ParseInt(query.Get("expires"), 10, 64)
	if err != nil {
		writeError(w, http.StatusForbidden, "invalid_signature", "missing or malformed expiry")
		return
	}
	err = a.config.Artifacts.VerifySignedURL(key, expires, query.Get("signature"))
	if err != nil {
		writeError(w, http.StatusForbidden, "invalid_signature", err.Error())
		return
	}
	data, err := a.config.Artifacts.GetArtifact(r.Context(), key)
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			writeError(w, http.StatusNotFound, "artifact_not_found", "artifact not found")
			return
		}
		a.logger.Error("failed to read artifact", "key", key, "error", err)
		writeError(w, http.StatusBadGateway, "artifact_unavailable", "failed to read artifact")
		return
	}
	contentType, err := a.config.Artifacts.ContentType(r.Context(), key)
	if err != nil || contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	w.Write(data)
}
