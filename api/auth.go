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
	"net/http"

	"github.com/blinklabs-io/endorse/auth"
)

const authRealm = `Basic realm="endorse", charset="UTF-8"`

type identityHandlerFunc func(w http.ResponseWriter, r *http.Request, identity string)

// authenticated verifies HTTP basic credentials and passes the caller
// identity on to next, both as an argument and in the request context
func (a *Api) authenticated(next identityHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, password, ok := r.BasicAuth()
		if !ok || a.config.Credentials == nil {
			w.Header().Set("WWW-Authenticate", authRealm)
			writeError(w, http.StatusUnauthorized, "unauthenticated", "credentials required")
			return
		}
		if err := a.config.Credentials.Verify(identity, password); err != nil {
			a.logger.Debug(
				"authentication failed",
				"identity", identity,
				"remote_addr", r.RemoteAddr,
			)
			w.Header().Set("WWW-Authenticate", authRealm)
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid credentials")
			return
		}
		r = r.WithContext(auth.WithIdentity(r.Context(), identity))
		next(w, r, identity)
	})
}
