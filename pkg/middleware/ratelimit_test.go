package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedHandler(l *RateLimiter) http.Handler {
	return l.Middleware(http.HandlerFunc(okHandler))
}

func requestFrom(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/sessions", nil)
	req.RemoteAddr = remote
	return req
}

func TestRateLimiter_AllowsBurstThenRejects(t *testing.T) {
	h := limitedHandler(NewRateLimiter(0.001, 3, time.Minute, discardLogger()))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("10.0.0.1:1234"))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"RATE_LIMITED"`)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_IndependentClients(t *testing.T) {
	h := limitedHandler(NewRateLimiter(0.001, 1, time.Minute, discardLogger()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom("10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom("10.0.0.2:1234"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Same IP, but authenticated: keyed by user instead.
	req := requestFrom("10.0.0.1:1234")
	req = req.WithContext(withUserID(req.Context(), "user-1"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_CleanupEvictsIdleClients(t *testing.T) {
	l := NewRateLimiter(10, 10, time.Minute, discardLogger())
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }

	limitedHandler(l).ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:1234"))
	now = now.Add(30 * time.Second)
	limitedHandler(l).ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.2:1234"))
	require.Equal(t, 2, l.len())

	now = now.Add(45 * time.Second)
	l.cleanup()
	assert.Equal(t, 1, l.len())
}

func TestRateLimiter_RunStopsOnCancel(t *testing.T) {
	l := NewRateLimiter(10, 10, time.Millisecond, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "junk, 203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
