package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/pkg/errcode"
	"github.com/xxxsen/mtutor/internal/pkg/jwt"
	"github.com/xxxsen/mtutor/internal/pkg/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextRoleKey   = "user_role"

	RoleAdmin = "admin"
)

// OptionalJWTAuth records the caller's user id when a valid bearer token is present.
// Anonymous or badly authenticated requests continue without one and are throttled by ip.
func OptionalJWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.Next()
			return
		}
		claims, err := jwt.ParseToken(strings.TrimSpace(parts[1]), secret)
		if err != nil {
			logutil.GetLogger(c.Request.Context()).Debug("ignore invalid bearer token", zap.Error(err))
			c.Next()
			return
		}
		c.Set(ContextUserIDKey, claims.UserID)
		if claims.Role != "" {
			c.Set(ContextRoleKey, claims.Role)
		}
		c.Next()
	}
}

func UserID(c *gin.Context) string {
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// RequireAdmin only lets through callers whose token carries the admin role. It relies
// on OptionalJWTAuth having run first.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		if role, _ := c.Get(ContextRoleKey); role != RoleAdmin {
			response.Error(c, errcode.ErrForbidden, "admin role required")
			c.Abort()
			return
		}
		c.Next()
	}
}
