package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-session-secret")

func signSessionToken(t *testing.T, method jwt.SigningMethod, claims sessionClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", bearerToken(r))

	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", bearerToken(r))

	r.Header.Set("Authorization", "bearer abc123")
	assert.Equal(t, "abc123", bearerToken(r))

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "", bearerToken(r))
}

func TestParseSessionToken(t *testing.T) {
	userID := uuid.New()
	claims := sessionClaims{
		Email: "dev@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	token := signSessionToken(t, jwt.SigningMethodHS256, claims)
	gotID, gotEmail, err := parseSessionToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, "dev@example.com", gotEmail)
}

func TestParseSessionTokenRejectsWrongSecret(t *testing.T) {
	token := signSessionToken(t, jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
	})
	_, _, err := parseSessionToken([]byte("other-secret"), token)
	assert.Error(t, err)
}

func TestParseSessionTokenRejectsWrongMethod(t *testing.T) {
	token := signSessionToken(t, jwt.SigningMethodHS512, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
	})
	_, _, err := parseSessionToken(testSecret, token)
	assert.Error(t, err)
}

func TestParseSessionTokenRejectsExpired(t *testing.T) {
	token := signSessionToken(t, jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	_, _, err := parseSessionToken(testSecret, token)
	assert.Error(t, err)
}

func TestParseSessionTokenRejectsNonUUIDSubject(t *testing.T) {
	token := signSessionToken(t, jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
	})
	_, _, err := parseSessionToken(testSecret, token)
	assert.Error(t, err)
}

func TestSessionAuthMiddleware(t *testing.T) {
	s := server{sessionSecret: testSecret}
	userID := uuid.New()

	var gotID uuid.UUID
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotID, _ = userIDFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := s.sessionAuthMiddleware(next)

	t.Run("missing token", func(t *testing.T) {
		called = false
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/agents", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("garbage token", func(t *testing.T) {
		called = false
		r := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
		r.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("valid token", func(t *testing.T) {
		called = false
		token := signSessionToken(t, jwt.SigningMethodHS256, sessionClaims{
			Email: "dev@example.com",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID.String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		r := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, called)
		assert.Equal(t, userID, gotID)
	})
}
