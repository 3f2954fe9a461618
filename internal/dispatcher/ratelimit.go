package dispatcher

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"optimus/internal/httpresp"
	"optimus/internal/oerr"
)

// rateLimiter is an IP-keyed fixed-window limiter guarding the submission
// endpoint, adapted from the teacher's net/http RateLimiter middleware into
// gin. The window is one second wide; the per-second rate and the burst
// allowance come from Config and are summed into one per-window cap.
type rateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	burst     int
	counts    map[string]int
	windowEnd map[string]time.Time
}

func newRateLimiter(requestsPerSecond, burst int) *rateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &rateLimiter{
		window:    time.Second,
		burst:     requestsPerSecond + burst,
		counts:    make(map[string]int),
		windowEnd: make(map[string]time.Time),
	}
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)

		rl.mu.Lock()
		now := time.Now()
		if end, ok := rl.windowEnd[key]; !ok || now.After(end) {
			rl.counts[key] = 0
			rl.windowEnd[key] = now.Add(rl.window)
		}
		rl.counts[key]++
		count := rl.counts[key]
		rl.mu.Unlock()

		if count > rl.burst {
			httpresp.ErrorWithCode(c, oerr.Validation, "rate limit exceeded, try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}

func clientKey(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "::1" || ip == "127.0.0.1" {
		return "localhost"
	}
	return strings.TrimSpace(ip)
}
