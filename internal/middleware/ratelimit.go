package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/pkg/errcode"
	"github.com/xxxsen/mtutor/internal/pkg/response"
	"github.com/xxxsen/mtutor/internal/ratelimit"
)

const (
	HeaderRetryAfter = "Retry-After"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
)

type RateLimitData struct {
	RetryAfter int    `json:"retry_after"`
	ResetAt    string `json:"reset_at"`
}

// RateLimit gates a route on the shared fixed window limiter. It must run after
// OptionalJWTAuth so that authenticated callers get a user scoped key.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Enabled() {
			c.Next()
			return
		}
		key := ratelimit.ClientKey(UserID(c), c.GetHeader("X-Forwarded-For"), c.GetHeader("X-Real-IP"), c.Request.RemoteAddr)
		res := limiter.Check(c.Request.Context(), key)
		resetAt := res.ResetAt.UTC().Format(time.RFC3339)
		c.Header(HeaderReset, resetAt)
		if res.Allowed {
			c.Header(HeaderRemaining, strconv.Itoa(res.Remaining))
			c.Next()
			return
		}
		retryAfter := res.RetryAfter(limiter.Now())
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("key", key),
			zap.String("path", c.Request.URL.Path),
			zap.Int("retry_after", retryAfter),
		)
		c.Header(HeaderRetryAfter, strconv.Itoa(retryAfter))
		response.AbortWithStatus(c, http.StatusTooManyRequests, errcode.ErrTooMany, "too many requests, please retry later", RateLimitData{
			RetryAfter: retryAfter,
			ResetAt:    resetAt,
		})
	}
}
