package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/ganymede/pkg/server/handlers"
)

func TestAdminAuthMiddleware(t *testing.T) {
	t.Run("empty key disables the check", func(t *testing.T) {
		wrapped := AdminAuthMiddleware("")(okHandler())

		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/queue/clear", nil))

		if w.Code != http.StatusOK {
			t.Errorf("status = %d without a configured key, want 200", w.Code)
		}
	})

	t.Run("correct key passes", func(t *testing.T) {
		wrapped := AdminAuthMiddleware("s3cret")(okHandler())

		req := httptest.NewRequest(http.MethodPost, "/admin/queue/clear", nil)
		req.Header.Set(AdminKeyHeader, "s3cret")
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d with the right key, want 200", w.Code)
		}
	})

	for _, tt := range []struct {
		name string
		key  string
	}{
		{"missing key rejected", ""},
		{"wrong key rejected", "not-the-key"},
		{"prefix of the key rejected", "s3cre"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := AdminAuthMiddleware("s3cret")(okHandler())

			req := httptest.NewRequest(http.MethodPost, "/admin/queue/clear", nil)
			if tt.key != "" {
				req.Header.Set(AdminKeyHeader, tt.key)
			}
			w := httptest.NewRecorder()
			wrapped.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			var resp handlers.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decoding error payload: %v", err)
			}
			if resp.Error.Type != handlers.ErrorTypeUnauthorized {
				t.Errorf("error type = %q, want %q", resp.Error.Type, handlers.ErrorTypeUnauthorized)
			}
		})
	}
}
