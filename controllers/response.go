package controllers

import (
	apperrors "checkout-service/common/errors"
	"checkout-service/middleware"

	"github.com/gin-gonic/gin"
)

// respond writes the success envelope shared by every endpoint.
func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"success":    status < 400,
		"statusCode": status,
		"message":    message,
		"data":       data,
	})
}

func currentUser(c *gin.Context) (string, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		_ = c.Error(apperrors.Unauthorized("Unauthorized"))
		return "", false
	}
	return userID, true
}

func bindError(c *gin.Context, err error) {
	_ = c.Error(apperrors.Validation("Invalid request body", []map[string]string{{"message": err.Error()}}))
}
