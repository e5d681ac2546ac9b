package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager(testSecret, "address-service", time.Hour)

	token, err := m.GenerateAccessToken("user-1", "a@example.com")
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, "address-service", claims.Issuer)
}

func TestJWTManager_WrongSecret(t *testing.T) {
	token, err := NewJWTManager("another-secret-that-is-32-characters-long", "x", time.Hour).
		GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	_, err = NewJWTManager(testSecret, "x", time.Hour).ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager(testSecret, "x", -time.Minute)

	token, err := m.GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTManager_RejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTManager(testSecret, "x", time.Hour).ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTManager_SubjectFallback(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-9",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	got, err := NewJWTManager(testSecret, "x", time.Hour).Validator()(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", got.UserID)
}

func TestJWTManager_ValidatorPropagatesErrors(t *testing.T) {
	_, err := NewJWTManager(testSecret, "x", time.Hour).Validator()("not-a-token")
	assert.Error(t, err)
}
