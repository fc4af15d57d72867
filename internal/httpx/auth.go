package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/foretdhiver1228/storefront/internal/auth"
)

const userIDKey = "user_id"

type SessionParser interface {
	Parse(token string) (string, error)
}

// PrincipalLoader resolves a user id to its current roles.
type PrincipalLoader interface {
	Principal(ctx context.Context, userID string) (auth.User, error)
}

// Auth requires a valid session, read from the cookie or a Bearer header.
func Auth(sessions SessionParser, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(cookieName)
		if token == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		uid, err := sessions.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.Set(userIDKey, uid)
		c.Next()
	}
}

// RequireCapability loads the caller's roles and rejects it unless they grant cap.
func RequireCapability(users PrincipalLoader, cap auth.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := users.Principal(c.Request.Context(), UserID(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		if !auth.HasCapability(p, cap) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id set by Auth.
func UserID(c *gin.Context) string { return c.GetString(userIDKey) }
