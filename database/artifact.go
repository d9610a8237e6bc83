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

package database

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// SourceArtifactKey returns a fresh key for a document's source PDF
func SourceArtifactKey(documentID string) string {
	return path.Join("documents", documentID, "source", uuid.NewString()+".pdf")
}

// EntryArtifactKey returns a fresh key for an artifact produced by one
// ledger entry. The extension is given without the leading dot.
func EntryArtifactKey(documentID, entryID, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}
	return path.Join(
		"documents",
		documentID,
		"entries",
		entryID,
		uuid.NewString()+"."+ext,
	)
}
