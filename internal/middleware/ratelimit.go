package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/deedox/platform/pkg/response"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ipLimiter holds a rate limiter and last-seen time per IP.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds the state for IP-based rate limiting.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rps      rate.Limit
	burst    int
	reject   func(c *gin.Context)
}

// NewRateLimiter creates a new RateLimiter.
// rps is the allowed requests per second; burst is the max burst size.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		reject: func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Response{
				Code:    429,
				Message: "too many requests, please try again later",
			})
		},
	}
	// Background cleanup of stale entries every 3 minutes
	go rl.cleanup()
	return rl
}

// PerMinute allows n requests per minute per IP with a burst of n/3.
func PerMinute(n int) *RateLimiter {
	if n <= 0 {
		n = 60
	}
	burst := n / 3
	if burst < 1 {
		burst = 1
	}
	return NewRateLimiter(float64(n)/60, burst)
}

// WithProxyErrors answers rejections with the chat proxy's {"error": ...} body.
func (rl *RateLimiter) WithProxyErrors() *RateLimiter {
	rl.reject = func(c *gin.Context) {
		response.AbortProxy(c, http.StatusTooManyRequests, "too many requests, please try again later")
	}
	return rl
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.limiters[ip]
	if !exists {
		limiter := rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[ip] = &ipLimiter{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// cleanup removes IP entries not seen for 5 minutes.
func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(3 * time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.limiters {
			if time.Since(v.lastSeen) > 5*time.Minute {
				delete(rl.limiters, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware returns a Gin middleware that enforces IP-based rate limiting.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.getLimiter(c.ClientIP()).Allow() {
			rl.reject(c)
			return
		}
		c.Next()
	}
}
