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

package types

import (
	"encoding/binary"
	"strings"
)

const (
	ArtifactBlobKeyPrefix            = "a/"
	ArtifactContentTypeBlobKeyPrefix = "ct/"
)

// ArtifactChunkBlobKeyPrefix returns the prefix shared by all chunks of an artifact
func ArtifactChunkBlobKeyPrefix(path string) []byte {
	return []byte(ArtifactBlobKeyPrefix + CleanArtifactPath(path) + "\x00")
}

// ArtifactChunkBlobKey returns the blob key holding one chunk of an artifact.
// Chunk keys sort in chunk order.
func ArtifactChunkBlobKey(path string, chunk uint32) []byte {
	return binary.BigEndian.AppendUint32(ArtifactChunkBlobKeyPrefix(path), chunk)
}

// ArtifactContentTypeBlobKey returns the blob key holding the artifact content
// type. It is written after the chunks and marks the artifact as present.
func ArtifactContentTypeBlobKey(path string) []byte {
	return []byte(ArtifactContentTypeBlobKeyPrefix + CleanArtifactPath(path))
}

// CleanArtifactPath normalizes an artifact path into a relative, slash
// separated key without empty or dot segments
func CleanArtifactPath(path string) string {
	parts := strings.Split(path, "/")
	ret := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		ret = append(ret, part)
	}
	return strings.Join(ret, "/")
}
