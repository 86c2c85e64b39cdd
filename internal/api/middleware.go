package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// ipThrottle is the edge request throttle, one token bucket per client IP.
// It bounds HTTP request volume; model-call admission is enforced
// separately inside the pipeline.
type ipThrottle struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
	rps     rate.Limit
	burst   int
}

func newIPThrottle(rps float64, burst int) *ipThrottle {
	return &ipThrottle{
		buckets: expirable.NewLRU[string, *rate.Limiter](4096, nil, 10*time.Minute),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (t *ipThrottle) allow(ip string) bool {
	t.mu.Lock()
	limiter, ok := t.buckets.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(t.rps, t.burst)
		t.buckets.Add(ip, limiter)
	}
	t.mu.Unlock()
	return limiter.Allow()
}

func (s *Server) throttleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.throttle.allow(c.ClientIP()) {
			s.metrics.IncrementCounter("api.throttled", 1)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{
				Error: "too many requests",
			})
			return
		}
		c.Next()
	}
}
