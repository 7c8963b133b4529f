// SPDX-License-Identifier: MIT

package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// bearerAuth rejects requests lacking the configured token. An empty token
// disables authentication (the endpoint is then protected at the
// infrastructure layer). Comparison is constant-time.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
