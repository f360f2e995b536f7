package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rewardengine/internal/api/jwt"
)

// UserKey is the context key holding the authenticated user id.
const UserKey = "user_id"

func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "jwt missing"})
			return
		}
		userID, err := jwt.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(UserKey, userID)
		c.Next()
	}
}
