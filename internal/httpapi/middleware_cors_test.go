package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newCORSHandler(origins ...string) http.Handler {
	return corsMiddleware(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	h := newCORSHandler("https://app.example.com")

	r := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	r.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSAllowsLocalhost(t *testing.T) {
	h := newCORSHandler()

	r := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightUnknownOrigin(t *testing.T) {
	h := newCORSHandler("https://app.example.com")

	r := httptest.NewRequest(http.MethodOptions, "/v1/agents", nil)
	r.Header.Set("Origin", "https://attacker.example.net")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSUnknownOriginPassesThroughWithoutHeaders(t *testing.T) {
	h := newCORSHandler("https://app.example.com")

	r := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	r.Header.Set("Origin", "https://attacker.example.net")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightAllowedOrigin(t *testing.T) {
	h := newCORSHandler("https://app.example.com")

	r := httptest.NewRequest(http.MethodOptions, "/v1/agents", nil)
	r.Header.Set("Origin", "https://app.example.com")
	r.Header.Set("Access-Control-Request-Headers", "Authorization, X-Custom")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "Authorization, X-Custom", rec.Header().Get("Access-Control-Allow-Headers"))
}
