package auth

import (
	"dm-lab/domain/messaging"
	"dm-lab/errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const callerIDKey = "caller_id"

// Middleware authenticates the Bearer token and stores the caller id for the handlers.
// Requests without a valid token stop here with 401.
func Middleware(tokens *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(tokenString) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token is missing"})
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(tokenString))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errors.ErrInvalidToken.Error()})
			return
		}
		c.Set(callerIDKey, claims.UserID)
		c.Next()
	}
}

// CallerID returns the authenticated user of the request, empty outside of Middleware.
func CallerID(c *gin.Context) messaging.UserID {
	return c.GetString(callerIDKey)
}
