package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinchat/backend/pkg/model"
)

// UserLookup resolves authenticated user IDs to user records
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

// IdentityMiddleware resolves the acting user from the X-User-ID header set by
// the authenticating reverse proxy and stores it in the request context.
// Requests without a resolvable user are rejected.
func IdentityMiddleware(users UserLookup, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Authentication required",
			})
			return
		}

		user, err := users.GetUser(c.Request.Context(), userID)
		if err != nil {
			logger.Warn("failed to resolve acting user",
				zap.Error(err),
				zap.String("user_id", userID),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Authentication required",
			})
			return
		}

		c.Set("actor", user)
		c.Set("user_id", user.ID)
		c.Next()
	}
}
