package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a client's limiter survives without requests.
const limiterIdleTTL = 10 * time.Minute

// RateLimit allows each client perMinute requests per minute with a burst of the same size.
// Rejected requests get 429 with a Retry-After hint.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiters := newLimiterSet(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.get(clientIPForRateLimit(r)).Allow() {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type limiterSet struct {
	limit rate.Limit
	burst int
	cache *cache.Cache
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{limit: limit, burst: burst, cache: cache.New(limiterIdleTTL, limiterIdleTTL)}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	if v, ok := s.cache.Get(key); ok {
		lim := v.(*rate.Limiter)
		s.cache.Set(key, lim, cache.DefaultExpiration)
		return lim
	}
	lim := rate.NewLimiter(s.limit, s.burst)
	if err := s.cache.Add(key, lim, cache.DefaultExpiration); err != nil {
		// Lost the race to another request from the same client.
		if v, ok := s.cache.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
