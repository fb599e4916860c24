package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Close()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}

func TestRateLimitPerSession(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	defer rl.Close()

	r := chi.NewRouter()
	r.With(RateLimit(rl, BySession)).Post("/sessions/{sessionID}/notes/generate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	send := func(id string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/notes/generate", nil))
		return rec
	}

	assert.Equal(t, http.StatusCreated, send("s1").Code)
	limited := send("s1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, limited.Body.String())
	assert.Equal(t, http.StatusCreated, send("s2").Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5151"
	assert.Equal(t, "10.0.0.7", ClientIP(req))

	req.Header.Set("X-Real-Ip", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}
