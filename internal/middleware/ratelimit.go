package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleClientTTL is how long an unused client bucket is kept.
const idleClientTTL = 10 * time.Minute

// RateLimiter hands out one token bucket per client address. Each bucket
// refills max tokens per window and holds at most max.
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows max requests per window per client. A non-positive
// max or window disables limiting.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limit:   rate.Inf,
		now:     time.Now,
		clients: make(map[string]*client),
	}
	if max > 0 && window > 0 {
		rl.limit = rate.Limit(float64(max) / window.Seconds())
		rl.burst = max
	}
	return rl
}

// Allow reports whether key may proceed now, and if not, how long until
// it may.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	if rl.limit == rate.Inf {
		return true, 0
	}

	now := rl.now()
	limiter := rl.limiter(key, now)

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Duration(math.MaxInt64)
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > idleClientTTL {
		for k, c := range rl.clients {
			if now.Sub(c.lastSeen) > idleClientTTL {
				delete(rl.clients, k)
			}
		}
		rl.lastSweep = now
	}

	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header in whole seconds.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.Allow(clientKey(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(wait time.Duration) int {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// clientKey identifies the caller by remote IP.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
