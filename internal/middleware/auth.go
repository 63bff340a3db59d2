package middleware

import (
	"strings"

	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/internal/services"
	"github.com/deedox/platform/internal/utils"
	"github.com/deedox/platform/pkg/response"
	"github.com/gin-gonic/gin"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextRole     = "role"
	ContextIdentity = "identity"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setClaims(c *gin.Context, claims *utils.Claims) {
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextUsername, claims.Username)
	c.Set(ContextRole, claims.Role)
	c.Set(ContextIdentity, services.Authenticated{UserID: claims.UserID, Role: claims.Role})
}

// AuthRequired is a middleware that checks for a valid JWT token
func AuthRequired() gin.HandlerFunc {
	return authRequired(false)
}

// StreamAuth is AuthRequired that also accepts ?token=, for EventSource
// clients that cannot set headers.
func StreamAuth() gin.HandlerFunc {
	return authRequired(true)
}

func authRequired(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok && allowQuery {
			tokenString = c.Query("token")
			ok = tokenString != ""
		}
		if !ok {
			response.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth resolves the caller's Identity without rejecting anyone. A
// missing or unusable token yields services.Anonymous.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, ok := bearerToken(c); ok {
			if claims, err := utils.ParseToken(tokenString); err == nil {
				setClaims(c, claims)
				c.Next()
				return
			}
		}
		c.Set(ContextIdentity, services.Anonymous{})
		c.Next()
	}
}

// AdminRequired is a middleware that checks for admin role
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextRole)
		if !exists || role != models.RoleAdmin {
			response.Forbidden(c, "admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID gets the current user ID from context
func GetUserID(c *gin.Context) uint {
	if id, exists := c.Get(ContextUserID); exists {
		return id.(uint)
	}
	return 0
}

// GetUserIDPtr is GetUserID for nullable columns such as updated_by.
func GetUserIDPtr(c *gin.Context) *uint {
	if id := GetUserID(c); id > 0 {
		return &id
	}
	return nil
}

// GetUsername gets the current username from context
func GetUsername(c *gin.Context) string {
	if username, exists := c.Get(ContextUsername); exists {
		return username.(string)
	}
	return ""
}

// GetRole gets the current user role from context
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(ContextRole); exists {
		return role.(string)
	}
	return ""
}

// GetIdentity returns the identity set by OptionalAuth or AuthRequired.
func GetIdentity(c *gin.Context) services.Identity {
	if v, exists := c.Get(ContextIdentity); exists {
		if id, ok := v.(services.Identity); ok {
			return id
		}
	}
	return services.Anonymous{}
}
