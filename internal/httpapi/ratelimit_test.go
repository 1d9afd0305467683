package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiterAllow(t *testing.T) {
	l := newIPRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("10.0.0.1"))
	}
	assert.False(t, l.allow("10.0.0.1"))

	// Other addresses keep their own window.
	assert.True(t, l.allow("10.0.0.2"))
}

func TestIPRateLimiterWindowReset(t *testing.T) {
	l := newIPRateLimiter(1, 10*time.Millisecond)

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.allow("10.0.0.1"))
}

func TestRateLimitMiddleware(t *testing.T) {
	l := newIPRateLimiter(1, time.Minute)
	h := l.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	r.RemoteAddr = "192.0.2.7:51000"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate_limited"}`, rec.Body.String())
}
