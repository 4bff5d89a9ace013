package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/waste3d/courseplatform-api/internal/infrastructure/ratelimit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RateLimiter struct {
	governor *ratelimit.Governor
	log      *zap.Logger
}

func NewRateLimiter(gov *ratelimit.Governor, log *zap.Logger) *RateLimiter {
	return &RateLimiter{governor: gov, log: log}
}

func (rl *RateLimiter) Limit(bucket string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", bucket, ratelimit.ClientIdentifier(c.Request))

		d, err := rl.governor.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			// хранилище недоступно, не блокируем пользователей
			rl.log.Warn("rate limit store", zap.String("bucket", bucket), zap.Error(err))
			c.Next()
			return
		}

		SetRateLimitHeaders(c, d, rl.governor.Now())
		if !d.Allowed {
			Fail(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
			return
		}
		c.Next()
	}
}

func SetRateLimitHeaders(c *gin.Context, d ratelimit.Decision, now time.Time) {
	if d.Limit == 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		c.Header("Retry-After", strconv.Itoa(int(d.RetryAfter(now)/time.Second)))
	}
}
