package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestServerErrorLoggerLogsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	s := server{log: zerolog.New(&buf)}

	h := s.serverErrorLoggerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusInternalServerError, "query failed")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/agents", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"status":500`)
	assert.Contains(t, buf.String(), `"path":"/v1/agents"`)
}

func TestServerErrorLoggerSilentBelow500(t *testing.T) {
	var buf bytes.Buffer
	s := server{log: zerolog.New(&buf)}

	h := s.serverErrorLoggerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/agents", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, buf.String())
}

func TestStatusCapturingWriterImplicit200(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusCapturingResponseWriter{ResponseWriter: rec}
	_, err := sw.Write([]byte("ok"))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, sw.status)
}
