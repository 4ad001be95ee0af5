package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRateLimit(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allows up to burst then answers 429", func(t *testing.T) {
		// Rate of ~0 so the bucket never refills during the test
		handler := RateLimit(rate.Every(24*time.Hour), 2)(okHandler)

		for range 2 {
			req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
			req.RemoteAddr = "10.0.0.1:50000"
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			require.Equal(t, http.StatusOK, resp.Code)
		}

		req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
		req.RemoteAddr = "10.0.0.1:50001"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		require.Equal(t, http.StatusTooManyRequests, resp.Code)
	})

	t.Run("buckets are per remote host", func(t *testing.T) {
		handler := RateLimit(rate.Every(24*time.Hour), 1)(okHandler)

		first := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
		first.RemoteAddr = "10.0.0.1:50000"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, first)
		require.Equal(t, http.StatusOK, resp.Code)

		exhausted := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
		exhausted.RemoteAddr = "10.0.0.1:50001"
		resp = httptest.NewRecorder()
		handler.ServeHTTP(resp, exhausted)
		require.Equal(t, http.StatusTooManyRequests, resp.Code)

		other := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
		other.RemoteAddr = "10.0.0.2:50000"
		resp = httptest.NewRecorder()
		handler.ServeHTTP(resp, other)
		require.Equal(t, http.StatusOK, resp.Code, "a different host gets its own bucket")
	})
}
