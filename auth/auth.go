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

// Package auth answers authorization questions for the workflow and verifies
// API credentials. Workflow code asks yes/no questions about capabilities and
// never inspects roles directly.
package auth

import (
	"context"
	"slices"
)

type Capability string

const (
	CapabilityAdministrator       Capability = "administrator"
	CapabilityDocumentOwner       Capability = "document_owner"
	CapabilityDocumentParticipant Capability = "document_participant"
)

// Resource describes the document a capability is checked against
type Resource struct {
	DocumentID    string
	OwnerIdentity string
	// Participants holds the signer identities of the document ledger
	Participants []string
}

type Authorizer interface {
	Can(
		ctx context.Context,
		identity string,
		capability Capability,
		resource Resource,
	) (bool, error)
}

// StaticAuthorizer grants the administrator capability to a fixed set of
// identities and derives the document capabilities from the resource
type StaticAuthorizer struct {
	administrators map[string]struct{}
}

func NewStaticAuthorizer(administrators []string) *StaticAuthorizer {
	a := &StaticAuthorizer{
		administrators: make(map[string]struct{}, len(administrators)),
	}
	for _, id := range administrators {
		if id != "" {
			a.administrators[id] = struct{}{}
		}
	}
	return a
}

func (a *StaticAuthorizer) Can(
	_ context.Context,
	identity string,
	capability Capability,
	resource Resource,
) (bool, error) {
	if identity == "" {
		return false, nil
	}
	switch capability {
	case CapabilityAdministrator:
		_, ok := a.administrators[identity]
		return ok, nil
	case CapabilityDocumentOwner:
		return resource.OwnerIdentity != "" && identity == resource.OwnerIdentity, nil
	case CapabilityDocumentParticipant:
		return slices.Contains(resource.Participants, identity), nil
	}
	return false, nil
}

// AllowAll grants every capability. It is meant for tests and single user
// tooling.
type AllowAll struct{}

func (AllowAll) Can(context.Context, string, Capability, Resource) (bool, error) {
	return true, nil
}

type identityKey struct{}

// WithIdentity returns a context carrying the authenticated identity
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the authenticated identity, or an empty string
func IdentityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(identityKey{}).(string)
	return identity
}
