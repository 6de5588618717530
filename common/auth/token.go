package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

var ErrSecretNotConfigured = errors.New("JWT secret not configured")

// ParseAndValidateToken parses an HMAC-signed JWT and returns its claims.
// If expectedType is non-empty, the claim "typ" must match it.
func ParseAndValidateToken(secret []byte, tokenStr, expectedType string) (jwt.MapClaims, error) {
	if len(secret) == 0 {
		return nil, ErrSecretNotConfigured
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if expectedType != "" {
		if typ, ok := claims["typ"].(string); !ok || typ != expectedType {
			return nil, fmt.Errorf("invalid token type")
		}
	}
	return claims, nil
}
