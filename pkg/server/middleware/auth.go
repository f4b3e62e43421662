package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"mercator-hq/ganymede/pkg/server/handlers"
)

// AdminKeyHeader is the HTTP header carrying the admin key.
const AdminKeyHeader = "X-Admin-Key"

// AdminAuthMiddleware guards the admin surface with a shared key. The
// comparison runs over SHA-256 digests in constant time, so neither key
// content nor key length leaks through timing. An empty configured key
// disables the check.
func AdminAuthMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		want := sha256.Sum256([]byte(key))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := sha256.Sum256([]byte(r.Header.Get(AdminKeyHeader)))
			if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(handlers.NewUnauthorizedError(
					"missing or invalid admin key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
