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

package badger

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/endorse/database/types"
)

const DefaultURLBase = "http://localhost:8080/artifacts"

var (
	ErrSignatureInvalid = errors.New("signed url: invalid signature")
	ErrSignatureExpired = errors.New("signed url: expired")
)

func (d *BlobStoreBadger) initURLSigning() error {
	if len(d.urlSigningKey) > 0 {
		return nil
	}
	// Without a configured key, URLs only stay valid for the life of the process
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	d.urlSigningKey = key
	d.logger.Debug(
		"no url signing key configured, generated an ephemeral key",
		"component", "database",
	)
	return nil
}

func (d *BlobStoreBadger) urlSignature(key string, expires int64) string {
	mac := hmac.New(sha256.New, d.urlSigningKey)
	mac.Write([]byte(types.CleanArtifactPath(key)))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedURL returns a URL under the configured base that the API serves
// until ttl elapses
func (d *BlobStoreBadger) SignedURL(
	ctx context.Context,
	key string,
	ttl time.Duration,
) (string, error) {
	if _, err := d.ContentType(ctx, key); err != nil {
		return "", err
	}
	expires := time.Now().Add(ttl).Unix()
	segments := strings.Split(types.CleanArtifactPath(key), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	query := url.Values{}
	query.Set("expires", strconv.FormatInt(expires, 10))
	query.Set("signature", d.urlSignature(key, expires))
	return strings.TrimSuffix(d.urlBase, "/") + "/" +
		strings.Join(segments, "/") + "?" + query.Encode(), nil
}

// VerifySignedURL checks the expiry and signature of a URL issued by SignedURL
func (d *BlobStoreBadger) VerifySignedURL(
	key string,
	expires int64,
	signature string,
) error {
	expected := d.urlSignature(key, expires)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrSignatureInvalid
	}
	if time.Now().Unix() > expires {
		return ErrSignatureExpired
	}
	return nil
}
