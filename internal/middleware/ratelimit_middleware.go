package middleware

import (
	"context"
	"net/http"
	"strconv"

	"uniforme-api/internal/redis"
	"uniforme-api/internal/services"
	"uniforme-api/internal/transport/httpdto"
	"uniforme-api/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UploadLimiter is satisfied by *redis.RateLimiter.
type UploadLimiter interface {
	AllowUpload(ctx context.Context, principalID string) (*redis.RateLimitResult, error)
}

// UploadRateLimitMiddleware throttles upload-url, confirm and upload per
// principal. Must run after AuthMiddleware. A limiter failure lets the request
// through.
func UploadRateLimitMiddleware(limiter UploadLimiter, l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := c.ClientIP()
		if p, ok := services.PrincipalFromContext(c.Request.Context()); ok {
			key = p.IDString()
		}

		result, err := limiter.AllowUpload(c.Request.Context(), key)
		if err != nil {
			if l != nil {
				l.WarnCtx(c.Request.Context(), "rate limiter unavailable", zap.Error(err))
			}
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("upload rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
