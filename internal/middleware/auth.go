package middleware

import (
	"net/http"
	"strings"

	"momopay/config"
	"momopay/internal/auth"

	"github.com/gin-gonic/gin"
)

const clientIDKey = "client_id"

// AuthRequired validates the client JWT and sets client_id in context.
func AuthRequired(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(clientIDKey, claims.ClientID)
		c.Set("claims", claims)
		c.Next()
	}
}

// GetClientID returns the authenticated client ID (must be used after AuthRequired).
func GetClientID(c *gin.Context) string {
	return c.GetString(clientIDKey)
}
