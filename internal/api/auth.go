package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards every route that reads or mutates subscriber data; only
// /health stays public. The serve command always supplies a non-empty token,
// generating a session token at startup when BRIEFWIRE_API_TOKEN is unset.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
