package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/plugscrape/config"
	"github.com/use-agent/plugscrape/models"
)

const (
	limiterIdleTTL = time.Hour
	sweepEvery     = 5 * time.Minute
)

// limiters holds one token bucket per identity. Idle buckets are dropped
// during lookups, at most once per sweepEvery.
type limiters struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiters(cfg config.RateLimitConfig) *limiters {
	return &limiters{
		rps:     rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *limiters) allow(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= sweepEvery {
		for id, b := range l.buckets {
			if now.Sub(b.lastSeen) > limiterIdleTTL {
				delete(l.buckets, id)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[identity]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[identity] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// RateLimit returns token-bucket rate limiting per identity: the API key
// when Auth set one, the client IP otherwise.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	l := newLimiters(cfg)
	return func(c *gin.Context) {
		identity := APIKey(c)
		if identity == "" {
			identity = c.ClientIP()
		}
		if !l.allow(identity) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.NewErrorResponse(
				models.ErrCodeRateLimited, "rate limit exceeded, please slow down",
			))
			return
		}
		c.Next()
	}
}
