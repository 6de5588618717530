package auth_test

import (
	"testing"
	"time"

	"checkout-service/common/auth"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func sign(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestParseAndValidateToken(t *testing.T) {
	tok := sign(t, secret, jwt.MapClaims{"sub": "user-1", "typ": "access", "exp": time.Now().Add(time.Hour).Unix()})

	claims, err := auth.ParseAndValidateToken(secret, tok, "access")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])

	_, err = auth.ParseAndValidateToken(secret, tok, "refresh")
	assert.Error(t, err)

	_, err = auth.ParseAndValidateToken([]byte("other"), tok, "")
	assert.Error(t, err)

	_, err = auth.ParseAndValidateToken(nil, tok, "")
	assert.ErrorIs(t, err, auth.ErrSecretNotConfigured)
}

func TestParseAndValidateToken_Expired(t *testing.T) {
	tok := sign(t, secret, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Minute).Unix()})
	_, err := auth.ParseAndValidateToken(secret, tok, "")
	assert.Error(t, err)
}
