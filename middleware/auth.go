package middleware

import (
	"errors"
	"strings"

	"checkout-service/common/auth"
	apperrors "checkout-service/common/errors"

	"github.com/gin-gonic/gin"
)

const (
	UserContextKey = "userID"
	RoleContextKey = "role"

	RoleAdmin = "admin"
)

// AuthMiddleware identifies the caller from a bearer token signed with
// jwtSecret. With trustGatewayHeaders set it falls back to the X-User-ID /
// X-User-Role headers the API gateway injects after verifying the token
// itself; otherwise those headers are ignored.
func AuthMiddleware(jwtSecret string, trustGatewayHeaders bool) gin.HandlerFunc {
	secret := []byte(jwtSecret)
	return func(c *gin.Context) {
		userID, role := "", ""

		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			claims, err := auth.ParseAndValidateToken(secret, strings.TrimPrefix(header, "Bearer "), "")
			if err != nil {
				_ = c.Error(apperrors.Unauthorized("Invalid or expired token"))
				c.Abort()
				return
			}
			userID, _ = claims["user_id"].(string)
			role, _ = claims["role"].(string)
		} else if trustGatewayHeaders {
			userID = c.GetHeader("X-User-ID")
			role = c.GetHeader("X-User-Role")
		}

		if userID == "" {
			_ = c.Error(apperrors.Unauthorized("Unauthorized"))
			c.Abort()
			return
		}
		c.Set(UserContextKey, userID)
		c.Set(RoleContextKey, role)
		c.Next()
	}
}

// AdminOnly must run after AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleContextKey) != RoleAdmin {
			_ = c.Error(apperrors.Forbidden("Admin access required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) (string, error) {
	if val, ok := c.Get(UserContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id, nil
		}
	}
	return "", errors.New("user ID not found in context")
}
