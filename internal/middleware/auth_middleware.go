package middleware

import (
	"context"
	"strings"

	"medibook/internal/models"
	"medibook/internal/utils"
	"medibook/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthRequired validates the bearer token and sets the caller's id and role
// on the context.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.UnauthorizedResponse(c, "Authorization header required")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			utils.UnauthorizedResponse(c, "Bearer token required")
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString, secret)
		if err != nil {
			utils.UnauthorizedResponse(c, utils.ErrMsgInvalidToken)
			c.Abort()
			return
		}
		if !models.UserRole(claims.Role).IsValid() || claims.UserID.IsZero() {
			utils.UnauthorizedResponse(c, "Invalid token claims")
			c.Abort()
			return
		}

		c.Set(utils.ContextKeyUserID, claims.UserID)
		c.Set(utils.ContextKeyUserRole, claims.Role)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.UserIDKey, claims.UserID))

		c.Next()
	}
}

// RequireRoles admits callers whose token carries one of roles
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.UserRole(c.GetString(utils.ContextKeyUserRole))
		if role == "" {
			utils.UnauthorizedResponse(c, "User role not found")
			c.Abort()
			return
		}

		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}

		utils.ForbiddenResponse(c, "Access restricted to "+joinRoles(roles))
		c.Abort()
	}
}

func AdminRequired() gin.HandlerFunc {
	return RequireRoles(models.UserRoleAdmin)
}

func joinRoles(roles []models.UserRole) string {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return strings.Join(names, ", ")
}
