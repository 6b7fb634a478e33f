package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// IngestTokenMiddleware checks: Authorization: Bearer <token>
// An empty token disables the check. Rejects with 401 on any mismatch.
func IngestTokenMiddleware(token string) gin.HandlerFunc {
	expected := []byte("Bearer " + token)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		raw := []byte(c.GetHeader("Authorization"))
		if subtle.ConstantTimeCompare(raw, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or missing ingest token",
			})
			return
		}
		c.Next()
	}
}

// corsMiddleware lets pages on other origins post telemetry.
func corsMiddleware(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Pulse-Session")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}
