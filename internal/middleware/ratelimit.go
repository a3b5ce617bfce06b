package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fuseproject/fuse/backend/pkg/response"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitor is one token bucket and when its owner was last seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per caller. Callers are told apart
// by client IP unless ByUser switches the key to the session's user.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	key      func(c *gin.Context) string
}

// NewRateLimiter creates a limiter allowing rps requests per second with
// bursts of up to burst requests per caller.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		key:      clientIPKey,
	}
	go rl.cleanup()
	return rl
}

// ByUser keys buckets by the authenticated user, so callers sharing an
// address do not starve each other. Requests without a session fall back
// to the client IP. It must run after AuthRequired.
func (rl *RateLimiter) ByUser() *RateLimiter {
	rl.key = userKey
	return rl
}

func clientIPKey(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

func userKey(c *gin.Context) string {
	if id := GetUserID(c); id != 0 {
		return "user:" + strconv.FormatUint(uint64(id), 10)
	}
	return clientIPKey(c)
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// cleanup drops buckets idle for five minutes.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(3 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for key, v := range rl.visitors {
			if time.Since(v.lastSeen) > 5*time.Minute {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware rejects callers over their budget with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(rl.key(c)) {
			msg := "too many requests, please try again later"
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Response{Code: http.StatusTooManyRequests, Message: msg, Errors: []string{msg}})
			return
		}
		c.Next()
	}
}
