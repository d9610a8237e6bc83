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

package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/blinklabs-io/endorse/database/plugin"

	// Register blob plugins
	_ "github.com/blinklabs-io/endorse/database/plugin/blob/aws"
	_ "github.com/blinklabs-io/endorse/database/plugin/blob/badger"
	_ "github.com/blinklabs-io/endorse/database/plugin/blob/gcs"
)

// BlobStore holds opaque artifacts by path. Get and Delete return
// types.ErrBlobKeyNotFound for a missing path.
type BlobStore interface {
	Close() error
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// LocalURLVerifier is implemented by stores whose signed URLs point back at
// this process rather than at a cloud provider
type LocalURLVerifier interface {
	VerifySignedURL(key string, expires int64, signature string) error
	ContentType(ctx context.Context, key string) (string, error)
}

// New returns the started blob plugin selected by name
func New(pluginName string) (BlobStore, error) {
	p, err := plugin.StartPlugin(plugin.PluginTypeBlob, pluginName)
	if err != nil {
		return nil, err
	}
	blobStore, ok := p.(BlobStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement BlobStore interface",
			pluginName,
		)
	}
	return blobStore, nil
}
