package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"taskhub/internal/auth"
)

const ctxUserID = "userID"

// requireAuth verifies the bearer token and stores the acting user's id in
// the request context. Every failure is a 401 before handler logic runs.
func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing Authorization header"})
		return
	}

	userID, err := auth.UserIDFromToken(token, s.jwtSecret)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	c.Set(ctxUserID, userID)
	c.Next()
}

// currentUserID returns the id placed in the context by requireAuth.
func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}
