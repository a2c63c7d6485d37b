package consent

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carevault/dlt-consent/pkg/config"
	"github.com/carevault/dlt-consent/pkg/logger"
)

func newTestValidator() *TokenValidator {
	return NewTokenValidator(&config.JWTConfig{
		SecretKey: "test-secret",
		Issuer:    "carevault-consent",
	})
}

func TestTokenValidator_RoundTrip(t *testing.T) {
	validator := newTestValidator()

	token, err := validator.GenerateToken("patient-1", time.Hour)
	require.NoError(t, err)

	userID, err := validator.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "patient-1", userID)
}

func TestTokenValidator_RejectsWrongSecret(t *testing.T) {
	validator := newTestValidator()
	other := NewTokenValidator(&config.JWTConfig{SecretKey: "different-secret"})

	token, err := other.GenerateToken("patient-1", time.Hour)
	require.NoError(t, err)

	_, err = validator.ValidateJWT(token)
	assert.Error(t, err)
}

func TestTokenValidator_RejectsExpiredToken(t *testing.T) {
	validator := newTestValidator()

	token, err := validator.GenerateToken("patient-1", -time.Minute)
	require.NoError(t, err)

	_, err = validator.ValidateJWT(token)
	assert.Error(t, err)
}

func TestAuthMiddleware_SetsCallerID(t *testing.T) {
	validator := newTestValidator()
	log := logger.New("error")

	var gotCaller string
	handler := AuthMiddleware(validator, log, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller = CallerID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token, err := validator.GenerateToken("patient-1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/patients/patient-1/access-requests", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "patient-1", gotCaller)
}

func TestAuthMiddleware_RejectsMissingToken(t *testing.T) {
	validator := newTestValidator()
	log := logger.New("error")

	handler := AuthMiddleware(validator, log, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	}))

	req := httptest.NewRequest("GET", "/patients/patient-1/access-requests", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_RejectsGarbageToken(t *testing.T) {
	validator := newTestValidator()
	log := logger.New("error")

	handler := AuthMiddleware(validator, log, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with an invalid token")
	}))

	req := httptest.NewRequest("GET", "/patients/patient-1/access-requests", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
