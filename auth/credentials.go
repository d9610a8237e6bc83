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

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Compared against when the identity is unknown so that lookups take the
// same time as a failed password check
var placeholderHash, _ = bcrypt.GenerateFromPassword(
	[]byte("placeholder"),
	bcrypt.MinCost,
)

// Credentials verifies passwords against bcrypt hashes keyed by identity
type Credentials struct {
	hashes map[string][]byte
}

// NewCredentials validates the configured hashes
func NewCredentials(hashes map[string]string) (*Credentials, error) {
	c := &Credentials{
		hashes: make(map[string][]byte, len(hashes)),
	}
	for identity, hash := range hashes {
		if identity == "" {
			return nil, errors.New("credential with empty identity")
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("credential for %q: %w", identity, err)
		}
		c.hashes[identity] = []byte(hash)
	}
	return c, nil
}

func (c *Credentials) Len() int {
	return len(c.hashes)
}

func (c *Credentials) Verify(identity string, password string) error {
	hash, ok := c.hashes[identity]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(placeholderHash, []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for the credentials config
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
