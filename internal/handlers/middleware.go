package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/adaudit/internal/auth"
	"github.com/justsurfingit/adaudit/internal/models"
	"github.com/justsurfingit/adaudit/internal/services"
)

const (
	userKey      = "user"
	apiKeyHeader = "X-Api-Key"
)

// RequireSession resolves the bearer token to a user and stores it on the context.
func RequireSession(authSvc *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := authSvc.Authenticate(bearerToken(c))
		if err != nil {
			respondError(c, "Authentication required", err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// RequireRole lets admins and the listed roles through.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if user.Role == services.RoleAdmin {
			c.Next()
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Role " + user.Role + " may not do this"})
	}
}

// RequireAPIKey guards the routes the Google Ads script calls.
func RequireAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.KeyMatches(c.GetHeader(apiKeyHeader), key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// actor names the user in the modification audit trail.
func actor(c *gin.Context) string {
	if user := currentUser(c); user != nil {
		return user.Email
	}
	return "unknown"
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
