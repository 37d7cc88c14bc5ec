package http

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = time.Minute

// notifyLimiter keeps one token bucket per client IP. Idle buckets expire.
type notifyLimiter struct {
	limit rate.Limit
	burst int
	cache *ttlcache.Cache[string, *rate.Limiter]
}

// newNotifyLimiter returns nil when limit is not positive, disabling limiting
func newNotifyLimiter(limit float64, burst int) *notifyLimiter {
	if limit <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}

	cache := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](limiterIdleTTL),
	)
	go cache.Start()

	return &notifyLimiter{
		limit: rate.Limit(limit),
		burst: burst,
		cache: cache,
	}
}

func (l *notifyLimiter) get(key string) *rate.Limiter {
	if item := l.cache.Get(key); item != nil {
		return item.Value()
	}
	item, _ := l.cache.GetOrSet(key, rate.NewLimiter(l.limit, l.burst))
	return item.Value()
}

func (l *notifyLimiter) stop() {
	if l != nil {
		l.cache.Stop()
	}
}

// rateLimitMiddleware rejects requests over the per-IP budget with 429
func rateLimitMiddleware(l *notifyLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}

		limiter := l.get(c.ClientIP())
		res := limiter.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			logger.Warn("rate limit exceeded",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()))

			c.Header("Retry-After", fmt.Sprintf("%.0f", math.Ceil(delay.Seconds())))
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%v", limiter.Limit()))
			c.Header("X-RateLimit-Burst", fmt.Sprintf("%d", limiter.Burst()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: ErrorDetail{
					Code:    "RATE_LIMITED",
					Message: "too many notifications",
				},
			})
			return
		}

		c.Next()
	}
}
