package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicbase/scheduler/internal/auth"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, sub string, role string) string {
	t.Helper()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func sessionProbe(t *testing.T, token string) (*httptest.ResponseRecorder, *auth.Identity) {
	t.Helper()
	var got *auth.Identity
	handler := Session(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := auth.FromContext(r.Context()); ok {
			got = &id
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, got
}

func TestSessionAcceptsValidToken(t *testing.T) {
	userID := uuid.New()
	rec, got := sessionProbe(t, signToken(t, testSecret, userID.String(), "patient"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, auth.RolePatient, got.Role)
}

func TestSessionRejectsMissingHeader(t *testing.T) {
	rec, got := sessionProbe(t, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, got)
}

func TestSessionRejectsWrongSecret(t *testing.T) {
	rec, _ := sessionProbe(t, signToken(t, "other-secret", uuid.NewString(), "doctor"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionRejectsBadSubject(t *testing.T) {
	rec, _ := sessionProbe(t, signToken(t, testSecret, "not-a-uuid", "patient"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionRejectsUnknownRole(t *testing.T) {
	rec, _ := sessionProbe(t, signToken(t, testSecret, uuid.NewString(), "admin"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionRejectsExpiredToken(t *testing.T) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Role: "patient",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec, _ := sessionProbe(t, signed)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
