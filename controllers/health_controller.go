package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func HealthCheck(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	}
}
