package middleware

import (
	"context"
	"net/http"
	"strings"

	"uniforme-api/internal/services"
	"uniforme-api/internal/transport/httpdto"
	"uniforme-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

func AuthMiddleware(auth services.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := auth.Verify(extractBearer(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		ctx := services.WithPrincipal(c.Request.Context(), principal)
		ctx = context.WithValue(ctx, logger.UserIdKey, principal.IDString())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
