package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("puts a deadline on the context", func(t *testing.T) {
		var deadline time.Time
		var ok bool
		wrapped := TimeoutMiddleware(5 * time.Second)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			deadline, ok = r.Context().Deadline()
		}))

		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

		if !ok {
			t.Fatal("context has no deadline")
		}
		if remaining := time.Until(deadline); remaining > 5*time.Second || remaining < 4*time.Second {
			t.Errorf("deadline %s away, want about 5s", remaining)
		}
	})

	t.Run("zero timeout leaves the context alone", func(t *testing.T) {
		var ok bool
		wrapped := TimeoutMiddleware(0)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			_, ok = r.Context().Deadline()
		}))

		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

		if ok {
			t.Error("context has a deadline with timeout disabled")
		}
	})
}
