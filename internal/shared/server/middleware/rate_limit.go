package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"voterlist-backend/internal/shared/server/respond"
)

const (
	defaultRateLimitGroup = "DEFAULT"
	// Above this many buckets, refilled buckets are dropped on the next new key.
	maxRateBuckets = 10000
)

// RateLimitRule refills Rate tokens per second up to Burst.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

// RateLimitConfig selects a rule per request group. Groups without a rule
// are not limited.
type RateLimitConfig struct {
	Rules        map[string]RateLimitRule
	DefaultGroup string
	GroupFor     func(*gin.Context) string
	Limiter      *RateLimiter
}

// RateLimiter keeps one token bucket per caller and group.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	now     func() time.Time
}

type rateBucket struct {
	rule RateLimitRule
	lim  *rate.Limiter
}

func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		buckets: make(map[string]*rateBucket),
		now:     now,
	}
}

// RateLimit throttles per signed-in username, or per client IP for anonymous
// callers such as login attempts.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(nil)
	}
	if cfg.DefaultGroup == "" {
		cfg.DefaultGroup = defaultRateLimitGroup
	}
	return func(c *gin.Context) {
		group := cfg.DefaultGroup
		if cfg.GroupFor != nil {
			if g := strings.TrimSpace(cfg.GroupFor(c)); g != "" {
				group = g
			}
		}
		rule, ok := cfg.Rules[group]
		if !ok {
			c.Next()
			return
		}
		caller := strings.TrimSpace(UserIDFromContext(c))
		if caller == "" {
			caller = "ip:" + c.ClientIP()
		}
		allowed, wait := cfg.Limiter.Allow(caller+"|"+group, rule)
		if allowed {
			c.Next()
			return
		}
		tooMany(c, group, wait)
	}
}

func tooMany(c *gin.Context, group string, wait time.Duration) {
	waitMs := wait.Milliseconds()
	if waitMs <= 0 {
		waitMs = 1000
	}
	seconds := (waitMs + 999) / 1000
	c.Header("Retry-After", strconv.FormatInt(seconds, 10))
	respond.Error(c, http.StatusTooManyRequests, "rate_limited", "অনেক বেশি অনুরোধ, কিছুক্ষণ পরে চেষ্টা করুন",
		gin.H{"group": group, "retryAfterMs": waitMs})
}

// Allow takes one token for key. When refused it reports how long until a
// token is available. Rules with a zero rate or burst never limit.
func (l *RateLimiter) Allow(key string, rule RateLimitRule) (bool, time.Duration) {
	if l == nil || rule.Rate <= 0 || rule.Burst <= 0 {
		return true, 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || b.rule != rule {
		if !ok && len(l.buckets) >= maxRateBuckets {
			l.pruneLocked(now)
		}
		b = &rateBucket{rule: rule, lim: rate.NewLimiter(rate.Limit(rule.Rate), rule.Burst)}
		l.buckets[key] = b
	}
	if b.lim.AllowN(now, 1) {
		return true, 0
	}
	res := b.lim.ReserveN(now, 1)
	wait := res.DelayFrom(now)
	res.CancelAt(now)
	return false, wait
}

// Len reports how many buckets are tracked.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// pruneLocked drops buckets that have refilled to burst; they behave like a
// fresh bucket.
func (l *RateLimiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		if b.lim.TokensAt(now) >= float64(b.rule.Burst) {
			delete(l.buckets, key)
		}
	}
}
