package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration for the public booking
// routes. MaxClients bounds how many client IPs are tracked at once; the
// least recently seen client is forgotten first and starts again with a full
// bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	MaxClients        int
}

// DefaultRateLimitConfig allows a person filling in the booking form a few
// retries without letting a script sweep the slot grid.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 5,
		BurstSize:         20,
		MaxClients:        10000,
	}
}

// clientBucket is one client's token bucket.
type clientBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// take refills the bucket up to burst and spends one token. When the bucket
// is empty it reports how long until the next token, rounded up to seconds.
func (b *clientBucket) take(now time.Time, rate float64, burst int) (remaining int, retryAfter int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.lastRefill).Seconds() * rate
	if full := float64(burst); b.tokens > full {
		b.tokens = full
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return int(b.tokens), 0, true
	}
	if rate <= 0 {
		return 0, 1, false
	}
	return 0, int(math.Ceil((1 - b.tokens) / rate)), false
}

// clientLimiter maps client keys to buckets in a bounded LRU.
type clientLimiter struct {
	cfg     RateLimitConfig
	now     func() time.Time
	buckets *lru.Cache[string, *clientBucket]
}

func newClientLimiter(cfg RateLimitConfig, now func() time.Time) *clientLimiter {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultRateLimitConfig().MaxClients
	}
	// lru.New only fails for a non-positive size.
	buckets, _ := lru.New[string, *clientBucket](cfg.MaxClients)
	return &clientLimiter{cfg: cfg, now: now, buckets: buckets}
}

func (l *clientLimiter) bucket(key string) *clientBucket {
	if b, ok := l.buckets.Get(key); ok {
		return b
	}
	fresh := &clientBucket{tokens: float64(l.cfg.BurstSize), lastRefill: l.now()}
	if prev, ok, _ := l.buckets.PeekOrAdd(key, fresh); ok {
		return prev
	}
	return fresh
}

func (l *clientLimiter) allow(key string) (remaining int, retryAfter int, ok bool) {
	return l.bucket(key).take(l.now(), l.cfg.RequestsPerSecond, l.cfg.BurstSize)
}

// RateLimit returns a per-client-IP rate limiting middleware. Buckets live
// in process memory.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newClientLimiter(cfg, time.Now))
}

func rateLimit(limiter *clientLimiter) echo.MiddlewareFunc {
	limit := strconv.FormatFloat(limiter.cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			remaining, retryAfter, ok := limiter.allow(c.RealIP())
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
