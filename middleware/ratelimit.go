package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleAfter is how long a bucket takes to refill completely. A caller
// quiet for that long is indistinguishable from a new one, so its
// limiter can be dropped.
const idleAfter = time.Minute

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiterSet hands out one token bucket per key and forgets idle keys.
type limiterSet struct {
	mu        sync.Mutex
	every     rate.Limit
	burst     int
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterSet(perMinute int) *limiterSet {
	return &limiterSet{
		every:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		visitors: map[string]*visitor{},
		now:      time.Now,
	}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	now := s.now()
	if now.Sub(s.lastSweep) >= idleAfter {
		for k, v := range s.visitors {
			if now.Sub(v.seen) >= idleAfter {
				delete(s.visitors, k)
			}
		}
		s.lastSweep = now
	}
	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(s.every, s.burst)}
		s.visitors[key] = v
	}
	v.seen = now
	s.mu.Unlock()

	return v.lim.AllowN(now, 1)
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// RateLimit allows each signed-in user perMinute requests a minute with a
// burst of the same size. Anonymous callers are keyed by client IP.
func RateLimit(perMinute int) gin.HandlerFunc {
	set := newLimiterSet(perMinute)
	return func(c *gin.Context) {
		key := c.ClientIP()
		if sess := Session(c); sess != nil {
			key = sess.UserID
		}

		if !set.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Slow down, too many messages"})
			return
		}
		c.Next()
	}
}
