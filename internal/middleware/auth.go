package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/uwcirg/truenth-portal-sub002/auth"
	"github.com/uwcirg/truenth-portal-sub002/internal/errors"
)

// Auth guards the internal surface. Callers present either the shared
// internal secret or a signed service token.
type Auth struct {
	InternalSecret     string
	ServiceTokenSecret string
}

// InternalAuthMiddleware authorizes service-to-service calls
func (m *Auth) InternalAuthMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := strings.TrimPrefix(
			ctx.GetHeader("Authorization"),
			"Bearer ",
		)

		if token == "" {
			ctx.Error(errors.Unauthorized("Authorization is not found!", nil))
			ctx.Abort()
			return
		}

		if token == m.InternalSecret {
			ctx.Set("caller", "internal")
			ctx.Next()
			return
		}

		caller, err := auth.VerifyServiceToken(token, []byte(m.ServiceTokenSecret))
		if err != nil {
			ctx.Error(errors.Unauthorized("Unauthorized internal call!", err))
			ctx.Abort()
			return
		}

		ctx.Set("caller", caller)
		ctx.Next()
	}
}
