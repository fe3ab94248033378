package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const apiKeyHeader = "X-API-Key"

// RequireAPIKey guards write endpoints with a shared key carried in the
// X-API-Key header. An empty configured key disables the guard, which is
// only sensible for local development.
func RequireAPIKey(key string) gin.HandlerFunc {
	if key == "" {
		log.Warn().Msg("API key is empty; write endpoints are unprotected")
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		provided := c.GetHeader(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			return
		}
		c.Next()
	}
}
