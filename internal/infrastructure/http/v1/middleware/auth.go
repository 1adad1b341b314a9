package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"marketplace/internal/core/apperror"
	appctx "marketplace/internal/core/context"
	"marketplace/internal/core/security"
)

// JWTValidator turns a bearer token into an actor.
type JWTValidator interface {
	ValidateToken(tokenString string) (security.Actor, error)
}

// Auth validates the bearer token and puts the actor into the request context.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		actor, err := validator.ValidateToken(parts[1])
		if err != nil {
			_ = c.Error(apperror.NewUnauthorized("invalid token").WithCause(err))
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(appctx.WithActor(c.Request.Context(), actor))
		c.Set("user_id", actor.ID.String())
		c.Next()
	}
}

// RequireRole lets only the given roles through.
func RequireRole(roles ...security.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := appctx.GetActor(c.Request.Context())
		if !ok {
			abortUnauthorized(c, "authentication required")
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		_ = c.Error(apperror.NewForbidden("insufficient role").WithDetail("required_roles", roles))
		c.Abort()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
