package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voterlist-backend/internal/shared/server/respond"
)

const (
	userIDKey   = "userId"
	userRoleKey = "userRole"
	roleAdmin   = "ADMIN"
)

// IdentityResolver maps an incoming request to the authenticated account, if any.
type IdentityResolver interface {
	ResolveRequest(r *http.Request) (username string, role string, ok bool)
}

// Auth stores the caller identity in context when a live session is presented.
// Anonymous requests pass through; RequireUser and RequireRole gate routes.
func Auth(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		if resolver != nil {
			if username, role, ok := resolver.ResolveRequest(c.Request); ok {
				c.Set(userIDKey, username)
				c.Set(userRoleKey, role)
			}
		}
		c.Next()
	}
}

// RequireUser rejects anonymous callers with 401.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserIDFromContext(c) == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
			return
		}
		c.Next()
	}
}

// RequireRole rejects anonymous callers with 401 and other roles with 403.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserIDFromContext(c) == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
			return
		}
		if UserRoleFromContext(c) != role {
			respond.Error(c, http.StatusForbidden, "forbidden", "insufficient role", nil)
			return
		}
		c.Next()
	}
}

// RequireAdmin is RequireRole for the ADMIN role.
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(roleAdmin)
}

// UserIDFromContext fetches the username set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// UserRoleFromContext fetches the role set by the auth middleware.
func UserRoleFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userRoleKey)
	if role, ok := val.(string); ok {
		return role
	}
	return ""
}
