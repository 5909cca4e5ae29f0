package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Stale client entries are dropped after this much idle time.
const clientTTL = 10 * time.Minute

// clientLimiter is one client's token bucket and when it last made a request.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per client IP and evicts
// buckets that have gone quiet.
type limiterPool struct {
	rps     float64
	burst   int
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func (p *limiterPool) get(ip string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cl, ok := p.clients[ip]; ok {
		cl.lastSeen = time.Now()
		return cl.limiter
	}
	cl := &clientLimiter{
		limiter:  rate.NewLimiter(rate.Limit(p.rps), p.burst),
		lastSeen: time.Now(),
	}
	p.clients[ip] = cl
	return cl.limiter
}

func (p *limiterPool) evictStale() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ip, cl := range p.clients {
		if time.Since(cl.lastSeen) > clientTTL {
			delete(p.clients, ip)
		}
	}
}

// RateLimit enforces a per-client token bucket of rps sustained
// requests per second with the given burst. Over-limit requests get
// 429 with a Retry-After hint and the standard rate-limit headers.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	pool := &limiterPool{rps: rps, burst: burst, clients: make(map[string]*clientLimiter)}

	go func() {
		for {
			time.Sleep(5 * time.Minute)
			pool.evictStale()
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := pool.get(clientIP(r))

			res := limiter.Reserve()
			if delay := res.Delay(); !res.OK() || delay > 0 {
				if res.OK() {
					res.Cancel()
				}
				rejectRateLimited(w, int(delay.Seconds())+1)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr. X-Forwarded-For is
// client-controlled, so only RemoteAddr counts.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func rejectRateLimited(w http.ResponseWriter, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    http.StatusTooManyRequests,
		"message": "rate limit exceeded",
	})
}
